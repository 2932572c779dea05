package app

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/coreman2200/funtimes-ptycho/internal/camera"
	diag "github.com/coreman2200/funtimes-ptycho/internal/diagnostics"
	"github.com/coreman2200/funtimes-ptycho/internal/emitter"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pattern"
	"github.com/coreman2200/funtimes-ptycho/internal/selftest"
	"github.com/coreman2200/funtimes-ptycho/internal/sequence"
	"github.com/coreman2200/funtimes-ptycho/internal/serialcmd"
)

// Run waits out the start delay, starts the illumination run and then ticks
// the control loop until ctx is done. The panel is blanked on the way out.
func (c *Core) Run(ctx context.Context) error {
	if d := c.cfg.Sequence.StartDelay; d > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d):
		}
	}
	c.StartRun()

	ticker := time.NewTicker(c.cfg.Sequence.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Seq.Stop()
			if err := c.Matrix.Clear(); err != nil {
				c.log.Warn().Err(err).Msg("blank on shutdown failed")
			}
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}

// StartRun begins a fresh illumination run under a new run id.
func (c *Core) StartRun() {
	c.runID = emitter.NewRunID()
	c.Seq.Stop()
	c.Seq.Start()
	prog := c.Seq.Program()
	c.log.Info().Str("run", c.runID).Str("pattern", c.kind.String()).Int("points", len(prog.Points)).
		Int("cycles", prog.Cycles).Msg("illumination run started")
	c.emit("run_start", true, map[string]any{"pattern": c.kind.String(), "points": len(prog.Points)})
	c.publishStatus()
}

// Tick runs one pass of the control loop: queued control messages, one host
// command, idle and visualization housekeeping, then at most one frame of
// either a self-test or the illumination run.
func (c *Core) Tick() {
	c.drainControl()
	switch c.Commands.Poll() {
	case serialcmd.VisStart, serialcmd.Export:
		c.Vis.ExportPattern(c.grid)
	}

	c.Idle.Update()
	c.Vis.Update()
	if c.Idle.IsIdle() {
		c.publishStatus()
		return
	}

	switch {
	case c.test != nil:
		c.stepSelfTest()
	case c.Seq.State == sequence.Running:
		if c.Seq.Step() {
			c.Idle.Touch()
		}
	case c.Matrix.Dirty():
		// Nothing is drawing; restore the known blank state.
		if err := c.Matrix.Clear(); err != nil {
			c.log.Warn().Err(err).Msg("refresh failed")
		}
	}
	c.publishStatus()
}

func (c *Core) light(p image.Point, col matrix.Color) error {
	if err := c.Matrix.SetPixel(p.X, p.Y, col); err != nil {
		return err
	}
	c.Vis.SendLED(p.X, p.Y, col)
	return nil
}

func (c *Core) expose(f sequence.Frame) bool {
	ok := c.Camera.Trigger(c.cfg.Sequence.WaitForReady)
	if code := c.Camera.ErrorCode(); code != camera.CodeNone {
		c.log.Warn().Stringer("code", code).Int("index", f.Index).Msg("camera trigger failed")
		c.pushDiag(diag.CameraFault(code.String(), c.Camera.Count()))
		c.emit("camera_fault", false, map[string]any{"code": code.String(), "index": f.Index})
		c.Camera.ClearError()
	}
	return ok
}

func (c *Core) onFrame(f sequence.Frame, exposed bool) {
	c.log.Debug().Int("cycle", f.Cycle).Int("index", f.Index).Int("x", f.Point.X).Int("y", f.Point.Y).
		Bool("exposed", exposed).Msg("frame")
	c.emit("frame", exposed, map[string]any{"cycle": f.Cycle, "index": f.Index, "x": f.Point.X, "y": f.Point.Y})
}

func (c *Core) onDone(cycles int) {
	c.log.Info().Str("run", c.runID).Int("cycles", cycles).Int("frames", c.Seq.Frames()).
		Int("failures", c.Seq.Failures()).Msg("illumination run complete")
	c.emit("run_done", c.Seq.Failures() == 0, map[string]any{"cycles": cycles, "frames": c.Seq.Frames(), "failures": c.Seq.Failures()})
}

func (c *Core) onIdleChange(idle bool) {
	kind := "active"
	if idle {
		kind = "idle"
	}
	c.pushDiag(diag.Diagnostic{Time: c.clk.Now(), Severity: diag.Info, Code: "IDLE." + kind, Summary: "panel " + kind})
	c.emit(kind, true, nil)
}

// SetPattern regenerates the illumination grid for k and reloads the run.
// On error the previous pattern and program stay in place.
func (c *Core) SetPattern(k pattern.Kind) error {
	g := c.Patterns.NewGrid()
	if err := c.Patterns.Generate(g, k); err != nil {
		return fmt.Errorf("pattern %s: %w", k, err)
	}
	if err := c.Patterns.Validate(g); err != nil {
		return fmt.Errorf("pattern %s: %w", k, err)
	}
	prog := sequence.Program{
		Points:  g.Points(),
		Color:   matrix.Color(c.cfg.Sequence.Color),
		Cycles:  c.cfg.Sequence.Cycles,
		Trigger: c.cfg.Sequence.Trigger,
	}
	if err := c.Seq.Load(prog); err != nil {
		return err
	}
	c.grid, c.kind = g, k
	c.log.Info().Str("pattern", k.String()).Int("lit", g.Count()).Msg("pattern generated")
	return nil
}

// Grid is the active illumination pattern.
func (c *Core) Grid() *pattern.Grid { return c.grid }

// RunSelfTest starts a wiring check; the illumination run is suspended until
// it completes.
func (c *Core) RunSelfTest(k selftest.Kind) {
	c.test = selftest.NewRunner(selftest.Plan{Kind: k})
	c.log.Info().Str("test", string(k)).Msg("self-test started")
}

// SelfTesting reports whether a self-test is in progress.
func (c *Core) SelfTesting() bool { return c.test != nil }

func (c *Core) stepSelfTest() {
	if c.test.Step(c.Matrix) {
		return
	}
	errs := c.test.Errors()
	d := diag.Diagnostic{
		Time:     c.clk.Now(),
		Severity: diag.Info,
		Code:     "TEST.DONE",
		Summary:  fmt.Sprintf("self-test %s complete", c.test.Kind()),
		Evidence: map[string]any{"steps": c.test.Steps(c.Matrix), "errors": len(errs)},
	}
	if len(errs) > 0 {
		d.Severity, d.Code = diag.Err, "TEST.FAILED"
		d.Detail = errs[0].Error()
	}
	c.pushDiag(d)
	c.log.Info().Str("test", string(c.test.Kind())).Int("errors", len(errs)).Msg("self-test complete")
	c.test = nil
}

// Control queues a control message for the loop. It is safe to call from
// any goroutine.
func (c *Core) Control(msg map[string]any) {
	select {
	case c.ctrl <- msg:
	default:
		c.log.Warn().Msg("control queue full, message dropped")
	}
}

func (c *Core) drainControl() {
	for {
		select {
		case msg := <-c.ctrl:
			c.handleControl(msg)
		default:
			return
		}
	}
}

// handleControl applies one control message. Recognised keys:
// "send" (text fed to the command processor), "runTest", "pattern" and
// "sequence" (start | pause | resume | stop).
func (c *Core) handleControl(msg map[string]any) {
	if s, ok := msg["send"].(string); ok {
		if inj, ok := c.hw.Link.(injector); ok {
			inj.Inject([]byte(s))
		} else {
			c.log.Warn().Msg("link does not accept injected commands")
		}
	}
	if s, ok := msg["runTest"].(string); ok {
		k, err := selftest.ParseKind(s)
		if err != nil {
			c.pushDiag(diag.Diagnostic{Time: c.clk.Now(), Severity: diag.Warn, Code: "CONTROL.INVALID", Summary: err.Error()})
		} else {
			c.RunSelfTest(k)
		}
	}
	if s, ok := msg["pattern"].(string); ok {
		err := c.applyPattern(s)
		if err != nil {
			c.pushDiag(diag.Diagnostic{Time: c.clk.Now(), Severity: diag.Warn, Code: "CONTROL.INVALID", Summary: err.Error()})
		}
	}
	if s, ok := msg["sequence"].(string); ok {
		switch s {
		case "start":
			c.StartRun()
		case "pause":
			c.Seq.Pause()
		case "resume":
			c.Seq.Resume()
		case "stop":
			c.Seq.Stop()
			if err := c.Matrix.Clear(); err != nil {
				c.log.Warn().Err(err).Msg("blank failed")
			}
		default:
			c.pushDiag(diag.Diagnostic{Time: c.clk.Now(), Severity: diag.Warn, Code: "CONTROL.INVALID", Summary: "unknown sequence action " + s})
		}
	}
}

func (c *Core) applyPattern(name string) error {
	k, err := pattern.ParseKind(name)
	if err != nil {
		return err
	}
	if err := c.SetPattern(k); err != nil {
		return err
	}
	c.Vis.ExportPattern(c.grid)
	return nil
}
