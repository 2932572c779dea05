// Package vis mirrors panel and pattern state to the host as text events:
// LED,<x>,<y>,<color> for each lit LED and a PATTERN_START / PATTERN,<x>,<y> /
// PATTERN_END block for a pattern export. Output is dropped while disabled.
package vis

import (
	"fmt"
	"time"

	"github.com/coreman2200/funtimes-ptycho/internal/clock"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pattern"
)

const DefaultInterval = 100 * time.Millisecond

const (
	patternStart = "PATTERN_START"
	patternEnd   = "PATTERN_END"
)

// Mirror receives a copy of every emitted event line.
type Mirror interface {
	Publish(line string)
}

type Sink struct {
	out      *Console
	mirror   Mirror
	clk      clock.Clock
	interval time.Duration
	enabled  bool
	last     time.Time
}

// New returns a disabled sink.
func New(out *Console, interval time.Duration, clk clock.Clock) *Sink {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sink{out: out, clk: clk, interval: interval, last: clk.Now()}
}

func (s *Sink) SetMirror(m Mirror) { s.mirror = m }

func (s *Sink) Enable() {
	s.enabled = true
	s.last = s.clk.Now()
}

func (s *Sink) Disable()      { s.enabled = false }
func (s *Sink) Enabled() bool { return s.enabled }

// SendLED emits one LED event.
func (s *Sink) SendLED(x, y int, c matrix.Color) {
	if !s.enabled {
		return
	}
	s.emit(fmt.Sprintf("LED,%d,%d,%d", x, y, c))
}

// ExportPattern emits the lit cells of g in row-major order.
func (s *Sink) ExportPattern(g *pattern.Grid) {
	if !s.enabled || g == nil {
		return
	}
	s.emit(patternStart)
	for _, p := range g.Points() {
		s.emit(fmt.Sprintf("PATTERN,%d,%d", p.X, p.Y))
	}
	s.emit(patternEnd)
}

// Update reports whether the update interval elapsed since the last tick.
// LED events are sent as they happen, so nothing is flushed here.
func (s *Sink) Update() bool {
	if !s.enabled {
		return false
	}
	now := s.clk.Now()
	if now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now
	return true
}

func (s *Sink) emit(line string) {
	s.out.Println(line)
	if s.mirror != nil {
		s.mirror.Publish(line)
	}
}
