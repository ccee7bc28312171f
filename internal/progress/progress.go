package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Indicator draws a single-line progress bar for batch commands such as the
// rollup backfill. A nil writer disables output.
type Indicator struct {
	mu        sync.Mutex
	w         io.Writer
	message   string
	total     int
	current   int
	failed    int
	startTime time.Time
	lastDraw  time.Time
	now       func() time.Time
}

func New(w io.Writer, message string, total int) *Indicator {
	p := &Indicator{w: w, message: message, total: total, now: time.Now}
	p.startTime = p.now()
	return p
}

// Step records one finished item. Failed items are counted separately and
// reported on Finish.
func (p *Indicator) Step(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if err != nil {
		p.failed++
	}
	if p.w == nil {
		return
	}

	now := p.now()
	if now.Sub(p.lastDraw) < 100*time.Millisecond && p.current < p.total {
		return
	}
	p.lastDraw = now
	fmt.Fprintf(p.w, "\r%s", p.line(now))
}

func (p *Indicator) line(now time.Time) string {
	if p.total <= 0 {
		return fmt.Sprintf("%s (%d processed)", p.message, p.current)
	}

	pct := float64(p.current) / float64(p.total) * 100
	eta := ""
	if elapsed := now.Sub(p.startTime); p.current > 0 && p.current < p.total && elapsed > 0 {
		perItem := elapsed / time.Duration(p.current)
		eta = " ETA " + formatDuration(perItem*time.Duration(p.total-p.current))
	}
	return fmt.Sprintf("%s [%s] %d/%d (%.1f%%)%s", p.message, bar(pct), p.current, p.total, pct, eta)
}

// Finish prints the summary line.
func (p *Indicator) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return
	}

	elapsed := formatDuration(p.now().Sub(p.startTime))
	if p.failed > 0 {
		fmt.Fprintf(p.w, "\r%s: %d done, %d failed in %s\n", p.message, p.current-p.failed, p.failed, elapsed)
		return
	}
	fmt.Fprintf(p.w, "\r%s: %d done in %s\n", p.message, p.current, elapsed)
}

// Counts returns the finished and failed item counts.
func (p *Indicator) Counts() (done, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.failed
}

func bar(pct float64) string {
	filled := int(pct / 100 * barWidth)
	filled = max(0, min(filled, barWidth))
	return strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
