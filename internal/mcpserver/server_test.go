package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := search.Open(":memory:")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	ctx := context.Background()
	for _, e := range []store.Event{
		{ID: "2023", Name: "Burning Man 2023"},
		{ID: "2024", Name: "Burning Man 2024"},
	} {
		if err := st.UpsertEvent(ctx, e); err != nil {
			t.Fatalf("upsert event: %v", err)
		}
	}

	d := 4500 * time.Millisecond
	records := []store.Transmission{
		{
			EventID:       "2023",
			Station:       "Alpha",
			System:        "Ops1",
			Channel:       "1",
			StartTime:     time.Date(2023, 8, 31, 13, 0, 0, 0, store.ArchiveZone),
			Duration:      &d,
			FileName:      "Ops1/1/Alpha_20230831-130000.wav",
			SHA256:        "deadbeef",
			Transcription: "medical at six and esplanade",
		},
		{
			EventID:       "2024",
			Station:       "Gate",
			System:        "Ops2",
			Channel:       "1",
			StartTime:     time.Date(2024, 9, 1, 8, 15, 30, 0, store.ArchiveZone),
			FileName:      "Ops2/1/Gate_20240901-081530.wav",
			Transcription: "gate check complete",
		},
	}
	for _, tr := range records {
		if _, err := st.UpsertTransmission(ctx, tr); err != nil {
			t.Fatalf("upsert transmission: %v", err)
		}
		if err := idx.Sync(ctx, tr); err != nil {
			t.Fatalf("sync index: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, idx, logger)
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if len(res.Content) != 1 {
		t.Fatalf("content items = %d, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestListEvents(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleListEvents(context.Background(), toolRequest(nil))
	if err != nil {
		t.Fatalf("handleListEvents: %v", err)
	}

	var events []eventPayload
	if err := json.Unmarshal([]byte(resultText(t, res)), &events); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].ID != "2023" || events[0].Name != "Burning Man 2023" {
		t.Errorf("events[0] = %+v", events[0])
	}
}

func TestFindTransmissions(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleFindTransmissions(context.Background(), toolRequest(map[string]any{
		"event": "2023",
	}))
	if err != nil {
		t.Fatalf("handleFindTransmissions: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &records); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	got := records[0]
	if got["station"] != "Alpha" {
		t.Errorf("station = %v", got["station"])
	}
	if got["start_time"] != "2023-08-31T20:00:00Z" {
		t.Errorf("start_time = %v, want RFC 3339 in UTC", got["start_time"])
	}
	if got["duration"] != 4.5 {
		t.Errorf("duration = %v, want 4.5", got["duration"])
	}
	if got["sha256"] != "deadbeef" {
		t.Errorf("sha256 = %v", got["sha256"])
	}
}

func TestFindTransmissionsTimeRange(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleFindTransmissions(context.Background(), toolRequest(map[string]any{
		"start": "2024-01-01T00:00:00Z",
	}))
	if err != nil {
		t.Fatalf("handleFindTransmissions: %v", err)
	}

	var records []transmissionPayload
	if err := json.Unmarshal([]byte(resultText(t, res)), &records); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Station != "Gate" {
		t.Errorf("station = %q, want Gate", records[0].Station)
	}
}

func TestFindTransmissionsBadTime(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleFindTransmissions(context.Background(), toolRequest(map[string]any{
		"start": "yesterday",
	}))
	if err != nil {
		t.Fatalf("handleFindTransmissions: %v", err)
	}
	if !res.IsError {
		t.Error("malformed time should produce a tool error")
	}
}

func TestSearchTransmissions(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleSearchTransmissions(context.Background(), toolRequest(map[string]any{
		"query": "esplanade",
	}))
	if err != nil {
		t.Fatalf("handleSearchTransmissions: %v", err)
	}

	var hits []hitPayload
	if err := json.Unmarshal([]byte(resultText(t, res)), &hits); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Station != "Alpha" {
		t.Errorf("station = %q, want Alpha", hits[0].Station)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %v, want positive", hits[0].Score)
	}
}

func TestSearchTransmissionsMissingQuery(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleSearchTransmissions(context.Background(), toolRequest(nil))
	if err != nil {
		t.Fatalf("handleSearchTransmissions: %v", err)
	}
	if !res.IsError {
		t.Error("missing query should produce a tool error")
	}
}

func TestSearchTransmissionsBadLimit(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleSearchTransmissions(context.Background(), toolRequest(map[string]any{
		"query": "gate",
		"limit": 0,
	}))
	if err != nil {
		t.Fatalf("handleSearchTransmissions: %v", err)
	}
	if !res.IsError {
		t.Error("non-positive limit should produce a tool error")
	}
}
