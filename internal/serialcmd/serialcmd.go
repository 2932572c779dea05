// Package serialcmd parses the one-byte host command protocol and dispatches
// it to the idle, visualization and camera components.
//
//	i            enter idle
//	a            leave idle
//	v / q        start / stop visualization
//	p            export the active pattern
//	C[,]S,<enabled>,<pre>,<pulse>,<post>   camera settings, milliseconds
//	C[,]T,<enabled>,<pulse>                camera test pulse
//
// Any other byte counts as activity.
package serialcmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ptycho/internal/camera"
)

// ErrTimeout is returned by a Source when no byte arrived in time.
var ErrTimeout = errors.New("serialcmd: read timeout")

// Source is the host byte stream.
type Source interface {
	// Buffered is the number of bytes readable without blocking.
	Buffered() int
	// ReadByte blocks up to the link timeout and returns ErrTimeout or
	// io.EOF when nothing arrives.
	ReadByte() (byte, error)
}

type Idle interface {
	IsIdle() bool
	EnterIdle()
	ExitIdle()
	Touch()
}

type Vis interface {
	Enabled() bool
	Enable()
	Disable()
}

type Camera interface {
	SetEnabled(enabled bool)
	SetPreDelay(d time.Duration) camera.Outcome
	SetPulseWidth(d time.Duration) camera.Outcome
	SetPostDelay(d time.Duration) camera.Outcome
	Test(custom time.Duration) bool
	PulseWidth() time.Duration
	ErrorCode() camera.ErrorCode
	ClearError()
}

// Printer receives diagnostic text lines.
type Printer interface {
	Println(line string) bool
}

// Command is the command byte that was handled.
type Command byte

const (
	None        Command = 0
	IdleEnter   Command = 'i'
	IdleExit    Command = 'a'
	VisStart    Command = 'v'
	VisStop     Command = 'q'
	Export      Command = 'p'
	CameraSetup Command = 'C'
	Activity    Command = '*'
)

func (c Command) String() string {
	switch c {
	case None:
		return "none"
	case IdleEnter:
		return "idle-enter"
	case IdleExit:
		return "idle-exit"
	case VisStart:
		return "vis-start"
	case VisStop:
		return "vis-stop"
	case Export:
		return "pattern-export"
	case CameraSetup:
		return "camera-config"
	case Activity:
		return "activity"
	}
	return fmt.Sprintf("command(%q)", byte(c))
}

// maxDigits bounds a numeric field; the largest accepted value is 10000.
const maxDigits = 6

type Options struct {
	// DrainOnError discards the rest of a malformed camera command up to the
	// next line end. When false the leftover bytes are read as ordinary
	// commands, which only count as activity.
	DrainOnError bool
}

type Deps struct {
	Idle   Idle
	Vis    Vis
	Camera Camera
	Out    Printer
}

type Processor struct {
	src  Source
	deps Deps
	opts Options
	log  zerolog.Logger

	formatErrors int
}

func New(src Source, deps Deps, opts Options, logger zerolog.Logger) *Processor {
	return &Processor{src: src, deps: deps, opts: opts, log: logger}
}

// FormatErrors counts rejected camera commands.
func (p *Processor) FormatErrors() int { return p.formatErrors }

// Poll handles at most one command. It never blocks when no byte is
// buffered; only the camera command waits for its fields. A 'v' or 'q' that
// does not change the visualization state returns None.
func (p *Processor) Poll() Command {
	if p.src == nil || p.src.Buffered() == 0 {
		return None
	}
	b, err := p.src.ReadByte()
	if err != nil {
		return None
	}
	cmd := Command(b)
	switch cmd {
	case IdleEnter:
		if p.deps.Idle != nil && !p.deps.Idle.IsIdle() {
			p.say("Entering idle mode (manual)")
			p.deps.Idle.EnterIdle()
		}
	case IdleExit:
		if p.deps.Idle != nil && p.deps.Idle.IsIdle() {
			p.say("Exiting idle mode (manual)")
			p.deps.Idle.ExitIdle()
		}
	case VisStart:
		if p.deps.Vis == nil || p.deps.Vis.Enabled() {
			return None
		}
		p.say("Starting visualization mode")
		p.deps.Vis.Enable()
	case VisStop:
		if p.deps.Vis == nil || !p.deps.Vis.Enabled() {
			return None
		}
		p.say("Stopping visualization mode")
		p.deps.Vis.Disable()
	case Export:
		p.say("Exporting LED pattern...")
	case CameraSetup:
		p.camera()
	default:
		cmd = Activity
		if p.deps.Idle != nil {
			if p.deps.Idle.IsIdle() {
				p.say("Exiting idle mode due to serial activity")
				p.deps.Idle.ExitIdle()
			}
			p.deps.Idle.Touch()
		}
	}
	p.log.Debug().Stringer("command", cmd).Msg("serial command")
	return cmd
}

// formatError aborts the current camera command.
type formatError struct{ msg string }

func (e *formatError) Error() string { return e.msg }

func formatErr(f string, args ...any) error { return &formatError{msg: fmt.Sprintf(f, args...)} }

func (p *Processor) camera() {
	if err := p.cameraCommand(); err != nil {
		p.formatErrors++
		p.say("ERROR: " + err.Error())
		p.log.Warn().Err(err).Msg("camera command rejected")
		var fe *formatError
		if p.opts.DrainOnError && errors.As(err, &fe) {
			p.drain()
		}
	}
}

func (p *Processor) cameraCommand() error {
	kind, err := p.next()
	if err != nil {
		return formatErr("camera command: missing type")
	}
	if kind == ',' {
		if kind, err = p.next(); err != nil {
			return formatErr("camera command: missing type")
		}
	}
	if sep, err := p.next(); err != nil || sep != ',' {
		return formatErr("camera command: expected ',' after %q", kind)
	}

	switch kind {
	case 'S':
		v, err := p.fields(4)
		if err != nil {
			return err
		}
		if p.deps.Camera == nil {
			return errors.New("camera not available")
		}
		p.applySettings(v[0] != 0, ms(v[1]), ms(v[2]), ms(v[3]))
	case 'T':
		v, err := p.fields(2)
		if err != nil {
			return err
		}
		if p.deps.Camera == nil {
			return errors.New("camera not available")
		}
		c := p.deps.Camera
		c.SetEnabled(v[0] != 0)
		c.ClearError()
		width := ms(v[1])
		if width <= 0 || width > camera.MaxPulseWidth {
			if width != 0 {
				p.say(fmt.Sprintf("WARNING: camera test pulse %dms out of range, using %dms", v[1], c.PulseWidth().Milliseconds()))
			}
			width = c.PulseWidth()
		}
		if !c.Test(width) {
			return fmt.Errorf("camera test failed: %s", c.ErrorCode())
		}
		p.say(fmt.Sprintf("Camera test trigger sent (%dms)", width.Milliseconds()))
	default:
		return formatErr("camera command: unknown type %q", kind)
	}
	return nil
}

func (p *Processor) applySettings(enabled bool, pre, pulse, post time.Duration) {
	c := p.deps.Camera
	c.SetEnabled(enabled)
	for _, s := range []struct {
		name string
		v    time.Duration
		set  func(time.Duration) camera.Outcome
	}{
		{"pre-delay", pre, c.SetPreDelay},
		{"pulse width", pulse, c.SetPulseWidth},
		{"post-delay", post, c.SetPostDelay},
	} {
		if s.set(s.v) == camera.Ignored {
			p.say(fmt.Sprintf("WARNING: camera %s %dms out of range, kept previous value", s.name, s.v.Milliseconds()))
		}
	}
	p.say("Camera settings updated")
}

// fields reads n comma separated decimal fields. The last one ends at a line
// end or when the link goes quiet. Nothing is applied until all parsed.
func (p *Processor) fields(n int) ([]int, error) {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		last := i == n-1
		v, term, err := p.number()
		if err != nil {
			return nil, formatErr("camera command: field %d: %v", i+1, err)
		}
		switch {
		case !last && term != ',':
			return nil, formatErr("camera command: field %d: expected ','", i+1)
		case last && term == ',':
			return nil, formatErr("camera command: too many fields")
		}
		out = append(out, v)
	}
	return out, nil
}

// number reads an optionally signed decimal up to a terminator: ',' '\n'
// '\r', or 0 for a timeout/EOF after at least one digit. Negative values
// are left for the setters to refuse.
func (p *Processor) number() (int, byte, error) {
	v, digits, sign := 0, 0, 1
	for i := 0; ; i++ {
		b, err := p.next()
		if err != nil {
			if digits == 0 {
				return 0, 0, errors.New("missing value")
			}
			return sign * v, 0, nil
		}
		switch {
		case b == '-' && i == 0:
			sign = -1
		case b >= '0' && b <= '9':
			digits++
			if digits > maxDigits {
				return 0, 0, errors.New("value too long")
			}
			v = v*10 + int(b-'0')
		case b == ',' || b == '\n' || b == '\r':
			if digits == 0 {
				return 0, 0, errors.New("missing value")
			}
			return sign * v, b, nil
		default:
			return 0, 0, fmt.Errorf("unexpected %q", b)
		}
	}
}

func (p *Processor) next() (byte, error) {
	b, err := p.src.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrTimeout
		}
		return 0, err
	}
	return b, nil
}

// drain discards buffered bytes through the next line end.
func (p *Processor) drain() {
	for p.src.Buffered() > 0 {
		b, err := p.src.ReadByte()
		if err != nil || b == '\n' || b == '\r' {
			return
		}
	}
}

func (p *Processor) say(line string) {
	if p.deps.Out != nil {
		p.deps.Out.Println(line)
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
