package sequence

import (
	"errors"
	"fmt"
)

// NewPlayer constructs a Player with provided hooks.
func NewPlayer(h Hooks) *Player {
	return &Player{State: Idle, hooks: h}
}

type Player struct {
	State PlayerState

	prog  Program
	hooks Hooks
	idx   int
	cycle int

	frames   int
	failures int
	lastErr  error
}

// Load replaces the current program and rewinds to Idle.
func (p *Player) Load(prog Program) error {
	if len(prog.Points) == 0 {
		return errors.New("program has no points")
	}
	if !prog.Color.Valid() {
		return fmt.Errorf("program color %d out of range", prog.Color)
	}
	p.prog = prog
	p.State = Idle
	p.idx = 0
	p.cycle = 0
	p.lastErr = nil
	return nil
}

// Start moves to Running from Idle or Done, rewinding a finished run.
func (p *Player) Start() {
	if len(p.prog.Points) == 0 || p.State == Running {
		return
	}
	if p.State == Done {
		p.idx, p.cycle = 0, 0
	}
	p.State = Running
}

// Pause pauses playback.
func (p *Player) Pause() {
	if p.State == Running {
		p.State = Paused
	}
}

// Resume resumes playback.
func (p *Player) Resume() {
	if p.State == Paused {
		p.State = Running
	}
}

// Stop stops and resets to start.
func (p *Player) Stop() {
	p.State = Idle
	p.idx = 0
	p.cycle = 0
}

// Current is the frame the next Step will run.
func (p *Player) Current() Frame {
	f := Frame{Cycle: p.cycle, Index: p.idx, Total: len(p.prog.Points)}
	if p.idx < len(p.prog.Points) {
		f.Point = p.prog.Points[p.idx]
	}
	return f
}

func (p *Player) Program() Program { return p.prog }

// Frames is the number of frames run, Failures those whose light or
// exposure failed.
func (p *Player) Frames() int   { return p.frames }
func (p *Player) Failures() int { return p.failures }
func (p *Player) Err() error    { return p.lastErr }

// Step runs one frame: light the point, expose, blank. It reports whether a
// frame ran. A failed frame is counted and skipped; the run goes on.
func (p *Player) Step() bool {
	if p.State != Running || len(p.prog.Points) == 0 {
		return false
	}
	f := p.Current()

	ok := true
	if p.hooks.Light != nil {
		if err := p.hooks.Light(f.Point, p.prog.Color); err != nil {
			p.lastErr = err
			ok = false
		}
	}
	if ok && p.prog.Trigger && p.hooks.Expose != nil {
		ok = p.hooks.Expose(f)
	}
	if p.hooks.Blank != nil {
		if err := p.hooks.Blank(); err != nil {
			p.lastErr = err
		}
	}
	p.frames++
	if !ok {
		p.failures++
	}
	if p.hooks.OnFrame != nil {
		p.hooks.OnFrame(f, ok)
	}
	p.advance()
	return true
}

func (p *Player) advance() {
	p.idx++
	if p.idx < len(p.prog.Points) {
		return
	}
	p.idx = 0
	p.cycle++
	if p.prog.Cycles > 0 && p.cycle >= p.prog.Cycles {
		p.State = Done
		if p.hooks.OnDone != nil {
			p.hooks.OnDone(p.cycle)
		}
	}
}
