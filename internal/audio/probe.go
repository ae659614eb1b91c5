// Package audio probes recordings with ffprobe.
package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober reports the duration of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe probes files by shelling out to ffprobe.
type FFProbe struct {
	// Binary overrides the executable name, mainly for tests.
	Binary string
}

var _ Prober = (*FFProbe)(nil)

// Duration returns the container-reported duration of the file.
func (p *FFProbe) Duration(ctx context.Context, path string) (time.Duration, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	text := strings.TrimSpace(string(out))
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: parse duration %q: %w", path, text, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
