package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const barWidth = 20

// ProgressIndicator renders a single updating progress line for a known
// number of steps, e.g. walk-forward folds.
type ProgressIndicator struct {
	mu        sync.Mutex
	out       io.Writer
	name      string
	total     int
	current   int
	failed    int
	skipped   int
	startTime time.Time
	now       func() time.Time
	enabled   bool
}

// NewProgressIndicator creates a progress line on out. When enabled is false
// nothing is drawn and only the final summary is logged.
func NewProgressIndicator(out io.Writer, name string, total int, enabled bool) *ProgressIndicator {
	return &ProgressIndicator{
		out:       out,
		name:      name,
		total:     total,
		startTime: time.Now(),
		now:       time.Now,
		enabled:   enabled && out != nil,
	}
}

// ObserveFold advances one step. "skipped" is counted on its own and any
// other status besides "completed" counts as failed. Safe for concurrent folds.
func (pi *ProgressIndicator) ObserveFold(status string, _ time.Duration) {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	pi.current++
	switch status {
	case "completed":
	case "skipped":
		pi.skipped++
	default:
		pi.failed++
	}
	if pi.enabled {
		fmt.Fprint(pi.out, "\r\033[K"+pi.render())
	}
}

// Finish ends the progress line and logs a summary
func (pi *ProgressIndicator) Finish() {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	elapsed := pi.now().Sub(pi.startTime)
	if pi.enabled {
		fmt.Fprintf(pi.out, "\r\033[K%s: %d/%d done, %d skipped, %d failed (%v)\n",
			pi.name, pi.current, pi.total, pi.skipped, pi.failed, elapsed.Round(time.Millisecond))
	}
	log.Debug().
		Str("task", pi.name).
		Int("done", pi.current).
		Int("skipped", pi.skipped).
		Int("failed", pi.failed).
		Dur("elapsed", elapsed).
		Msg("Progress finished")
}

func (pi *ProgressIndicator) render() string {
	var b strings.Builder
	b.WriteString(pi.name)

	if pi.total <= 0 {
		fmt.Fprintf(&b, " (%d)", pi.current)
		return b.String()
	}

	filled := barWidth * pi.current / pi.total
	if filled > barWidth {
		filled = barWidth
	}
	b.WriteString(" [")
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(&b, "] %d/%d (%.1f%%)", pi.current, pi.total, float64(pi.current)/float64(pi.total)*100)

	if pi.skipped > 0 {
		fmt.Fprintf(&b, " %d skipped", pi.skipped)
	}
	if pi.failed > 0 {
		fmt.Fprintf(&b, " %d failed", pi.failed)
	}

	if pi.current > 0 && pi.current < pi.total {
		elapsed := pi.now().Sub(pi.startTime)
		perStep := elapsed / time.Duration(pi.current)
		eta := perStep * time.Duration(pi.total-pi.current)
		if eta > time.Hour {
			fmt.Fprintf(&b, " ETA: %v", eta.Round(time.Minute))
		} else {
			fmt.Fprintf(&b, " ETA: %v", eta.Round(time.Second))
		}
	}
	return b.String()
}
