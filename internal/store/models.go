// Package store provides the SQLite catalog of events and transmissions.
package store

import (
	"fmt"
	"time"
)

// ArchiveZone is the wall-clock zone of archive file names and rendered
// times. The gathering happens on Pacific Daylight Time.
var ArchiveZone = time.FixedZone("PDT", -7*60*60)

// Event represents an archival event, such as one year's gathering.
type Event struct {
	ID   string
	Name string
}

// Transmission represents one recorded radio transmission.
//
// SHA256 and Transcription are empty when absent; Duration is nil when
// absent. StartTime persists as REAL seconds since epoch at microsecond
// precision, which keeps natural-key equality stable across round trips.
type Transmission struct {
	EventID       string
	Station       string
	System        string
	Channel       string
	StartTime     time.Time
	Duration      *time.Duration
	FileName      string
	SHA256        string
	Transcription string
}

// Key returns the transmission's natural key.
func (t Transmission) Key() Key {
	return Key{
		EventID:   t.EventID,
		System:    t.System,
		Channel:   t.Channel,
		StartTime: t.StartTime,
	}
}

// EndTime returns the end of the transmission, or the start when the
// duration is unknown.
func (t Transmission) EndTime() time.Time {
	if t.Duration == nil {
		return t.StartTime
	}
	return t.StartTime.Add(*t.Duration)
}

// Key identifies a transmission: no two transmissions share the same
// event, system, channel, and start time.
type Key struct {
	EventID   string
	System    string
	Channel   string
	StartTime time.Time
}

// String renders the key in a stable form usable as a document ID.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.EventID, k.System, k.Channel, k.StartTime.UnixMicro())
}

// UpsertResult reports what an upsert did to the stored record.
type UpsertResult string

const (
	Inserted  UpsertResult = "inserted"
	Updated   UpsertResult = "updated"
	Unchanged UpsertResult = "unchanged"
)

// Filter selects transmissions in Find. Zero fields match everything.
// Text matches as a substring against station, system, channel, file
// name, and transcription.
type Filter struct {
	EventID string
	Station string
	System  string
	Channel string
	Text    string
	Start   time.Time
	End     time.Time
}
