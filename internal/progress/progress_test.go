package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestIndicator(total int) (*Indicator, *bytes.Buffer, *clock) {
	var buf bytes.Buffer
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := New(&buf, "Backfilling", total)
	p.now = c.now
	p.startTime = c.t
	return p, &buf, c
}

func TestIndicator_Steps(t *testing.T) {
	p, buf, c := newTestIndicator(4)

	c.t = c.t.Add(time.Second)
	p.Step(nil)
	if !strings.Contains(buf.String(), "1/4 (25.0%) ETA 3.0s") {
		t.Errorf("first step = %q", buf.String())
	}

	// Redraws are throttled until the last item.
	buf.Reset()
	p.Step(errors.New("boom"))
	if buf.Len() != 0 {
		t.Errorf("throttled step drew %q", buf.String())
	}
	p.Step(nil)
	p.Step(nil)
	if !strings.Contains(buf.String(), "4/4 (100.0%)") || !strings.Contains(buf.String(), strings.Repeat("#", barWidth)) {
		t.Errorf("last step = %q", buf.String())
	}

	buf.Reset()
	c.t = c.t.Add(90 * time.Second)
	p.Finish()
	if got := buf.String(); !strings.Contains(got, "3 done, 1 failed in 1.5m") {
		t.Errorf("Finish() = %q", got)
	}
	if done, failed := p.Counts(); done != 4 || failed != 1 {
		t.Errorf("Counts() = %d, %d", done, failed)
	}
}

func TestIndicator_UnknownTotal(t *testing.T) {
	p, buf, _ := newTestIndicator(0)
	p.Step(nil)
	if !strings.Contains(buf.String(), "Backfilling (1 processed)") {
		t.Errorf("Step() = %q", buf.String())
	}
}

func TestIndicator_Disabled(t *testing.T) {
	p := New(nil, "Quiet", 2)
	p.Step(nil)
	p.Finish()
	if done, _ := p.Counts(); done != 1 {
		t.Errorf("done = %d, want 1", done)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{3 * time.Hour, "3.0h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
