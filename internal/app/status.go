package app

import (
	"github.com/coreman2200/funtimes-ptycho/internal/camera"
	"github.com/coreman2200/funtimes-ptycho/internal/sequence"
)

// Status is the snapshot served on /health.
type Status struct {
	RunID        string          `json:"run_id"`
	Pattern      string          `json:"pattern"`
	Lit          int             `json:"lit"`
	Sequence     string          `json:"sequence"`
	Frame        sequence.Frame  `json:"frame"`
	Frames       int             `json:"frames"`
	Failures     int             `json:"failures"`
	Idle         bool            `json:"idle"`
	IdleSeconds  float64         `json:"idle_seconds"`
	Vis          bool            `json:"vis"`
	SelfTest     string          `json:"self_test,omitempty"`
	FormatErrors int             `json:"format_errors"`
	LinkFailures int             `json:"link_failures"`
	Camera       camera.Settings `json:"camera"`
}

// Status returns the last published snapshot. Safe for concurrent use.
func (c *Core) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Core) publishStatus() {
	s := Status{
		RunID:        c.runID,
		Pattern:      c.kind.String(),
		Lit:          c.grid.Count(),
		Sequence:     string(c.Seq.State),
		Frame:        c.Seq.Current(),
		Frames:       c.Seq.Frames(),
		Failures:     c.Seq.Failures(),
		Idle:         c.Idle.IsIdle(),
		IdleSeconds:  c.Idle.IdleTime().Seconds(),
		Vis:          c.Vis.Enabled(),
		FormatErrors: c.Commands.FormatErrors(),
		LinkFailures: c.Console.Failed(),
		Camera:       c.Camera.Settings(),
	}
	if c.test != nil {
		s.SelfTest = string(c.test.Kind())
	}
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
