// Package mcpserver exposes the catalog's read surface to MCP clients
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
)

// Catalog is the store surface the server reads from.
type Catalog interface {
	Events(ctx context.Context) ([]store.Event, error)
	Find(ctx context.Context, f store.Filter) ([]store.Transmission, error)
}

// Searcher is the index surface the server queries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Server wires the catalog and the search index into MCP tools.
type Server struct {
	catalog Catalog
	index   Searcher
	logger  *slog.Logger
	mcp     *server.MCPServer
}

// New creates the MCP server and registers its tools.
func New(catalog Catalog, index Searcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		catalog: catalog,
		index:   index,
		logger:  logger,
	}

	s.mcp = server.NewMCPServer(
		"transmissions",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List the archival events in the transmission catalog."),
	), s.handleListEvents)

	s.mcp.AddTool(mcp.NewTool("find_transmissions",
		mcp.WithDescription("List transmissions from the catalog, optionally filtered. "+
			"Times are RFC 3339."),
		mcp.WithString("event", mcp.Description("Event ID to filter by.")),
		mcp.WithString("station", mcp.Description("Station name to filter by.")),
		mcp.WithString("system", mcp.Description("Radio system to filter by.")),
		mcp.WithString("channel", mcp.Description("Channel to filter by.")),
		mcp.WithString("start", mcp.Description("Earliest start time, inclusive.")),
		mcp.WithString("end", mcp.Description("Latest start time, exclusive.")),
	), s.handleFindTransmissions)

	s.mcp.AddTool(mcp.NewTool("search_transmissions",
		mcp.WithDescription("Full-text search over transcriptions, stations, systems, "+
			"channels, and file names. Supports column filters like transcription:medical "+
			"and boolean operators."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits to return.")),
	), s.handleSearchTransmissions)

	return s
}

// ServeStdio serves MCP over stdin and stdout until the client hangs up.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// eventPayload is the wire form of one event.
type eventPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// transmissionPayload is the wire form of one transmission. Start times
// are RFC 3339 in UTC; duration is in seconds.
type transmissionPayload struct {
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

// hitPayload is a transmission with its search relevance score.
type hitPayload struct {
	transmissionPayload
	Score float64 `json:"score"`
}

func payloadFor(t store.Transmission) transmissionPayload {
	p := transmissionPayload{
		EventID:       t.EventID,
		Station:       t.Station,
		System:        t.System,
		Channel:       t.Channel,
		StartTime:     t.StartTime.UTC(),
		FileName:      t.FileName,
		SHA256:        t.SHA256,
		Transcription: t.Transcription,
	}
	if t.Duration != nil {
		seconds := t.Duration.Seconds()
		p.Duration = &seconds
	}
	return p
}

func (s *Server) handleListEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	events, err := s.catalog.Events(ctx)
	if err != nil {
		s.logger.Error("list events failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError("failed to list events"), nil
	}

	payload := make([]eventPayload, 0, len(events))
	for _, e := range events {
		payload = append(payload, eventPayload{ID: e.ID, Name: e.Name})
	}
	return jsonResult(payload)
}

func (s *Server) handleFindTransmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := store.Filter{
		EventID: req.GetString("event", ""),
		Station: req.GetString("station", ""),
		System:  req.GetString("system", ""),
		Channel: req.GetString("channel", ""),
	}

	var err error
	if f.Start, err = parseTimeArg(req.GetString("start", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if f.End, err = parseTimeArg(req.GetString("end", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := s.catalog.Find(ctx, f)
	if err != nil {
		s.logger.Error("find transmissions failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError("failed to query transmissions"), nil
	}

	payload := make([]transmissionPayload, 0, len(records))
	for _, t := range records {
		payload = append(payload, payloadFor(t))
	}
	return jsonResult(payload)
}

func (s *Server) handleSearchTransmissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", search.DefaultLimit)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be a positive integer"), nil
	}

	hits, err := s.index.Search(ctx, query, limit)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	payload := make([]hitPayload, 0, len(hits))
	for _, hit := range hits {
		payload = append(payload, hitPayload{
			transmissionPayload: payloadFor(hit.Transmission),
			Score:               hit.Score,
		})
	}
	return jsonResult(payload)
}

func parseTimeArg(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is not RFC 3339", v)
	}
	return t, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
