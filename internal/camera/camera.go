// Package camera fires the camera shutter line once per illumination frame.
//
// A trigger is a strictly ordered blocking sequence: pre-delay, pulse,
// optional ready wait, post-delay. Nothing else runs while it is in flight.
package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/funtimes-ptycho/internal/clock"
)

// Accepted ranges for the settings.
const (
	MaxPulseWidth = time.Second
	MaxPreDelay   = 5 * time.Second
	MaxPostDelay  = 10 * time.Second
)

const (
	DefaultPulseWidth   = 100 * time.Millisecond
	DefaultPreDelay     = 400 * time.Millisecond
	DefaultPostDelay    = 1500 * time.Millisecond
	DefaultReadyTimeout = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Output is the trigger line. Any gpio.PinOut satisfies it.
type Output interface {
	Out(l gpio.Level) error
}

// Input is the busy line; High means the camera is still processing a shot.
// Any gpio.PinIn satisfies it.
type Input interface {
	Read() gpio.Level
}

// State is the trigger state machine position.
type State int

const (
	Idle State = iota
	Triggering
	Success
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Triggering:
		return "triggering"
	case Success:
		return "success"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrorCode is latched on a failed trigger and kept until ClearError.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeTimeout
	CodeTriggerFailure
	CodeNotReady
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeTimeout:
		return "timeout"
	case CodeTriggerFailure:
		return "trigger_failure"
	case CodeNotReady:
		return "not_ready"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Outcome tells a setter's caller whether the value was applied. Rejected
// values leave the previous setting in place.
type Outcome int

const (
	Accepted Outcome = iota
	Ignored
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "ignored"
}

type Config struct {
	Enabled    bool
	PulseWidth time.Duration
	PreDelay   time.Duration
	PostDelay  time.Duration

	// ReadyTimeout bounds the busy-line wait.
	ReadyTimeout time.Duration
	PollInterval time.Duration
	// RequireReady refuses to fire while the busy line is asserted.
	RequireReady bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		PulseWidth:   DefaultPulseWidth,
		PreDelay:     DefaultPreDelay,
		PostDelay:    DefaultPostDelay,
		ReadyTimeout: DefaultReadyTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Settings is a read-only snapshot of the trigger configuration and audit
// fields.
type Settings struct {
	Enabled     bool          `json:"enabled"`
	PulseWidth  time.Duration `json:"pulse_width"`
	PreDelay    time.Duration `json:"pre_delay"`
	PostDelay   time.Duration `json:"post_delay"`
	Count       int           `json:"count"`
	LastTrigger time.Time     `json:"last_trigger"`
	Active      bool          `json:"active"`
	Error       string        `json:"error"`
}

type Trigger struct {
	out  Output
	busy Input
	clk  clock.Clock
	log  zerolog.Logger

	enabled      bool
	pulseWidth   time.Duration
	preDelay     time.Duration
	postDelay    time.Duration
	readyTimeout time.Duration
	poll         time.Duration
	requireReady bool

	state  State
	result State
	code   ErrorCode
	active bool
	count  int
	last   time.Time

	onPulse func(count int, at time.Time)
}

// New drives the trigger line low and applies cfg. busy may be nil when no
// ready line is wired. Out-of-range settings fall back to the defaults.
func New(out Output, busy Input, cfg Config, clk clock.Clock, logger zerolog.Logger) (*Trigger, error) {
	if out == nil {
		return nil, errors.New("camera: trigger line not wired")
	}
	if clk == nil {
		clk = clock.Real()
	}
	t := &Trigger{
		out:          out,
		busy:         busy,
		clk:          clk,
		log:          logger,
		enabled:      cfg.Enabled,
		pulseWidth:   DefaultPulseWidth,
		preDelay:     DefaultPreDelay,
		postDelay:    DefaultPostDelay,
		readyTimeout: cfg.ReadyTimeout,
		poll:         cfg.PollInterval,
		requireReady: cfg.RequireReady,
	}
	if t.readyTimeout <= 0 {
		t.readyTimeout = DefaultReadyTimeout
	}
	if t.poll <= 0 {
		t.poll = DefaultPollInterval
	}
	for name, o := range map[string]Outcome{
		"pulse_width": t.SetPulseWidth(cfg.PulseWidth),
		"pre_delay":   t.SetPreDelay(cfg.PreDelay),
		"post_delay":  t.SetPostDelay(cfg.PostDelay),
	} {
		if o == Ignored {
			t.log.Warn().Str("setting", name).Msg("camera setting out of range, using default")
		}
	}
	if err := out.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("camera: init trigger line: %w", err)
	}
	return t, nil
}

// OnPulse registers f to run after every pulse that reached the camera.
func (t *Trigger) OnPulse(f func(count int, at time.Time)) { t.onPulse = f }

// Trigger runs the full frame sequence. Disabled triggers succeed at once
// without touching the line. A failure latches an error code and returns
// false; a previous code stays latched across later successes.
func (t *Trigger) Trigger(waitForReady bool) bool {
	if !t.enabled {
		return true
	}
	t.begin()

	if t.requireReady && t.busy != nil && t.busy.Read() == gpio.High {
		return t.fail(CodeNotReady, Failed, nil)
	}
	t.clk.Sleep(t.preDelay)

	if err := t.pulse(t.pulseWidth); err != nil {
		return t.fail(CodeTriggerFailure, Failed, err)
	}

	if waitForReady && t.busy != nil {
		start := t.clk.Now()
		for t.busy.Read() == gpio.High {
			t.clk.Sleep(t.poll)
			if t.clk.Now().Sub(start) > t.readyTimeout {
				return t.fail(CodeTimeout, TimedOut, nil)
			}
		}
	}

	t.clk.Sleep(t.postDelay)
	t.finish(Success)
	return true
}

// Test fires one pulse without delays or ready wait. A custom width outside
// (0, MaxPulseWidth] uses the configured width.
func (t *Trigger) Test(custom time.Duration) bool {
	if !t.enabled {
		return true
	}
	t.begin()
	width := t.pulseWidth
	if custom > 0 && custom <= MaxPulseWidth {
		width = custom
	} else if custom != 0 {
		t.log.Warn().Dur("width", custom).Msg("test pulse width out of range, using configured width")
	}
	if err := t.pulse(width); err != nil {
		return t.fail(CodeTriggerFailure, Failed, err)
	}
	t.finish(Success)
	return true
}

func (t *Trigger) begin() {
	t.active = true
	t.state = Triggering
}

func (t *Trigger) finish(s State) {
	t.active = false
	t.state = Idle
	t.result = s
}

func (t *Trigger) fail(code ErrorCode, s State, err error) bool {
	t.code = code
	t.finish(s)
	ev := t.log.Warn().Str("code", code.String())
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("camera trigger failed")
	return false
}

func (t *Trigger) pulse(width time.Duration) error {
	if err := t.out.Out(gpio.High); err != nil {
		_ = t.out.Out(gpio.Low)
		return err
	}
	t.clk.Sleep(width)
	if err := t.out.Out(gpio.Low); err != nil {
		return err
	}
	t.count++
	t.last = t.clk.Now()
	t.log.Debug().Int("count", t.count).Dur("width", width).Msg("camera pulse")
	if t.onPulse != nil {
		t.onPulse(t.count, t.last)
	}
	return nil
}

func (t *Trigger) SetEnabled(enabled bool) { t.enabled = enabled }

// SetPulseWidth accepts (0, 1s].
func (t *Trigger) SetPulseWidth(d time.Duration) Outcome {
	if d <= 0 || d > MaxPulseWidth {
		return Ignored
	}
	t.pulseWidth = d
	return Accepted
}

// SetPreDelay accepts [0, 5s].
func (t *Trigger) SetPreDelay(d time.Duration) Outcome {
	if d < 0 || d > MaxPreDelay {
		return Ignored
	}
	t.preDelay = d
	return Accepted
}

// SetPostDelay accepts [0, 10s].
func (t *Trigger) SetPostDelay(d time.Duration) Outcome {
	if d < 0 || d > MaxPostDelay {
		return Ignored
	}
	t.postDelay = d
	return Accepted
}

func (t *Trigger) Enabled() bool             { return t.enabled }
func (t *Trigger) PulseWidth() time.Duration { return t.pulseWidth }
func (t *Trigger) PreDelay() time.Duration   { return t.preDelay }
func (t *Trigger) PostDelay() time.Duration  { return t.postDelay }

// Count is the number of pulses sent since construction.
func (t *Trigger) Count() int            { return t.count }
func (t *Trigger) LastTrigger() time.Time { return t.last }
func (t *Trigger) Active() bool           { return t.active }

// State is Triggering while a sequence is in flight and Idle otherwise.
func (t *Trigger) State() State { return t.state }

// Result is the terminal state of the last sequence, Idle if none ran.
func (t *Trigger) Result() State { return t.result }

func (t *Trigger) ErrorCode() ErrorCode { return t.code }
func (t *Trigger) ClearError()          { t.code = CodeNone }

func (t *Trigger) Settings() Settings {
	return Settings{
		Enabled:     t.enabled,
		PulseWidth:  t.pulseWidth,
		PreDelay:    t.preDelay,
		PostDelay:   t.postDelay,
		Count:       t.count,
		LastTrigger: t.last,
		Active:      t.active,
		Error:       t.code.String(),
	}
}
