package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/burningmantech/ranger-transmissions/internal/search"
	"github.com/burningmantech/ranger-transmissions/internal/store"
	"github.com/burningmantech/ranger-transmissions/internal/webapi"
)

// unknown marks attributes that have not been filled in yet.
const unknown = "…"

const (
	displayTimeLayout = "01/02 15:04:05"
	inspectTimeLayout = "2006-01-02 15:04:05 MST"
)

// dateTimeLayouts are the accepted -start and -end forms, interpreted
// as archive wall clock times.
var dateTimeLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseDateTime(value string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, store.ArchiveZone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func printEvents(w io.Writer, events []store.Event) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\n", e.ID, e.Name)
	}
	return tw.Flush()
}

func printTransmissionsText(w io.Writer, records []store.Transmission) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Event\tStation\tSystem\tChannel\tStart\tDuration\tTranscription")
	for _, t := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.EventID, t.Station, t.System, t.Channel,
			t.StartTime.In(store.ArchiveZone).Format(displayTimeLayout),
			durationText(t.Duration),
			transcriptionText(t.Transcription))
	}
	return tw.Flush()
}

func printTransmissionsCSV(w io.Writer, records []store.Transmission) error {
	cw := csv.NewWriter(w)
	header := []string{"Event", "Station", "System", "Channel", "Start", "Duration", "Transcription"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range records {
		duration := ""
		if t.Duration != nil {
			duration = strconv.FormatFloat(t.Duration.Seconds(), 'f', -1, 64)
		}
		row := []string{
			t.EventID, t.Station, t.System, t.Channel,
			t.StartTime.In(store.ArchiveZone).Format(time.RFC3339),
			duration,
			t.Transcription,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// printTransmissionsJSON writes the web API's wire form.
func printTransmissionsJSON(w io.Writer, records []store.Transmission) error {
	payload := make([]webapi.TransmissionResponse, 0, len(records))
	for _, t := range records {
		payload = append(payload, wireTransmission(t))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func wireTransmission(t store.Transmission) webapi.TransmissionResponse {
	resp := webapi.TransmissionResponse{
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
		resp.Duration = &seconds
	}
	return resp
}

func printSearchHits(w io.Writer, hits []search.Result) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tEvent\tStation\tChannel\tStart\tTranscription")
	for _, hit := range hits {
		t := hit.Transmission
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\t%s\t%s\n",
			hit.Score, t.EventID, t.Station, t.Channel,
			t.StartTime.In(store.ArchiveZone).Format(displayTimeLayout),
			transcriptionText(t.Transcription))
	}
	return tw.Flush()
}

func printInspect(w io.Writer, path string, t *store.Transmission) {
	fmt.Fprintln(w, path)
	fmt.Fprintf(w, "  event     %s\n", t.EventID)
	fmt.Fprintf(w, "  station   %s\n", t.Station)
	fmt.Fprintf(w, "  system    %s\n", t.System)
	fmt.Fprintf(w, "  channel   %s\n", t.Channel)
	fmt.Fprintf(w, "  start     %s\n", t.StartTime.In(store.ArchiveZone).Format(inspectTimeLayout))
	fmt.Fprintf(w, "  duration  %s\n", durationText(t.Duration))
	fmt.Fprintf(w, "  sha256    %s\n", orUnknown(t.SHA256))
	fmt.Fprintf(w, "  file      %s\n", t.FileName)
}

func durationText(d *time.Duration) string {
	if d == nil {
		return unknown
	}
	return d.String()
}

// transcriptionText collapses whitespace so tabs and newlines inside
// the text cannot break the column layout.
func transcriptionText(s string) string {
	if s == "" {
		return unknown
	}
	return strings.Join(strings.Fields(s), " ")
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
