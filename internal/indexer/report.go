package indexer

import (
	"fmt"
	"strings"
)

// Stage names the pipeline step where a file failed.
type Stage string

const (
	StageScan       Stage = "scan"
	StageParse      Stage = "parse"
	StageRead       Stage = "read"
	StageProbe      Stage = "probe"
	StageTranscribe Stage = "transcribe"
	StageIndex      Stage = "index"
)

// FileError is a per-file failure. It is collected into the report and
// never aborts the rest of the run.
type FileError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Report summarizes one indexing run. A file that was cataloged without
// an optional enrichment appears under both its upsert result and the
// error list.
type Report struct {
	Scanned     int
	Inserted    int
	Updated     int
	Unchanged   int
	Transcribed int
	Errors      []*FileError
}

// Failed returns the number of collected per-file errors.
func (r *Report) Failed() int { return len(r.Errors) }

func (r *Report) add(e *FileError) {
	r.Errors = append(r.Errors, e)
}

// String renders the end-of-run summary with one line per failed file.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scanned %d: %d inserted, %d updated, %d unchanged, %d transcribed, %d failed",
		r.Scanned, r.Inserted, r.Updated, r.Unchanged, r.Transcribed, r.Failed())
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n  %s", e)
	}
	return b.String()
}
