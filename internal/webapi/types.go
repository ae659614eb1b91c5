// Package webapi provides the read-only HTTP API over the catalog and
// the search index. Wire types are separate from domain types.
package webapi

import "time"

// EventResponse is the wire form of one event.
type EventResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TransmissionResponse is the wire form of one transmission. Start
// times are RFC 3339 in UTC; duration is in seconds, null when the
// recording was never probed.
type TransmissionResponse struct {
	EventID       string    `json:"event_id"`
	Station       string    `json:"station"`
	System        string    `json:"system"`
	Channel       string    `json:"channel"`
	StartTime     time.Time `json:"start_time"`
	Duration      *float64  `json:"duration"`
	FileName      string    `json:"file_name"`
	SHA256        string    `json:"sha256"`
	Transcription string    `json:"transcription"`
}

// SearchHit is one full-text match with its relevance score.
type SearchHit struct {
	TransmissionResponse
	Score float64 `json:"score"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
