// Package idle blanks the panel after a period without activity and blinks a
// heartbeat LED while blanked.
package idle

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ptycho/internal/clock"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultBlinkInterval = time.Minute
	DefaultBlinkDuration = 500 * time.Millisecond
)

// Display is the part of the matrix driver the idle manager needs.
type Display interface {
	Clear() error
	SetPixel(x, y int, c matrix.Color) error
	SetDirty(dirty bool)
}

type Config struct {
	Timeout       time.Duration
	BlinkInterval time.Duration
	BlinkDuration time.Duration
	// Heartbeat is the LED lit by the blink.
	HeartbeatX, HeartbeatY int
	HeartbeatColor         matrix.Color
}

func DefaultConfig(width, height int) Config {
	return Config{
		Timeout:        DefaultTimeout,
		BlinkInterval:  DefaultBlinkInterval,
		BlinkDuration:  DefaultBlinkDuration,
		HeartbeatX:     width / 2,
		HeartbeatY:     height / 2,
		HeartbeatColor: matrix.Green,
	}
}

// Manager is the Active/Idle state machine. Leaving idle only happens on an
// explicit ExitIdle, never by time passing.
type Manager struct {
	disp Display
	cfg  Config
	clk  clock.Clock
	log  zerolog.Logger

	idle         bool
	lastActivity time.Time
	lastBlink    time.Time

	onChange func(idle bool)
}

// New starts Active with the activity clock at now. disp may be nil.
func New(disp Display, cfg Config, clk clock.Clock, logger zerolog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	now := clk.Now()
	return &Manager{
		disp:         disp,
		cfg:          cfg,
		clk:          clk,
		log:          logger,
		lastActivity: now,
		lastBlink:    now,
	}
}

// OnChange registers f to run on every Active/Idle transition.
func (m *Manager) OnChange(f func(idle bool)) { m.onChange = f }

// EnterIdle blanks the panel and restarts the heartbeat timer. It is a no-op
// when already idle.
func (m *Manager) EnterIdle() {
	if m.idle {
		return
	}
	m.idle = true
	if m.disp != nil {
		if err := m.disp.Clear(); err != nil {
			m.log.Warn().Err(err).Msg("clear on idle failed")
		}
	}
	m.lastBlink = m.clk.Now()
	m.log.Info().Msg("entered idle")
	if m.onChange != nil {
		m.onChange(true)
	}
}

// ExitIdle resets the activity clock and asks for a forced refresh of the
// blanked panel.
func (m *Manager) ExitIdle() {
	if !m.idle {
		return
	}
	m.idle = false
	m.lastActivity = m.clk.Now()
	if m.disp != nil {
		m.disp.SetDirty(true)
	}
	m.log.Info().Msg("left idle")
	if m.onChange != nil {
		m.onChange(false)
	}
}

// Touch records activity without changing state.
func (m *Manager) Touch() { m.lastActivity = m.clk.Now() }

func (m *Manager) IsIdle() bool { return m.idle }

// IdleTime is the time since the last recorded activity.
func (m *Manager) IdleTime() time.Duration { return m.clk.Now().Sub(m.lastActivity) }

// Update advances the state machine. While idle it blinks at most once per
// BlinkInterval; the blink blocks for BlinkDuration.
func (m *Manager) Update() {
	now := m.clk.Now()
	if !m.idle {
		if now.Sub(m.lastActivity) >= m.cfg.Timeout {
			m.EnterIdle()
		}
		return
	}
	if now.Sub(m.lastBlink) >= m.cfg.BlinkInterval {
		m.blink()
		m.lastBlink = now
	}
}

func (m *Manager) blink() {
	if m.disp == nil {
		return
	}
	if err := m.disp.SetPixel(m.cfg.HeartbeatX, m.cfg.HeartbeatY, m.cfg.HeartbeatColor); err != nil {
		m.log.Warn().Err(err).Msg("heartbeat")
		return
	}
	m.clk.Sleep(m.cfg.BlinkDuration)
	if err := m.disp.Clear(); err != nil {
		m.log.Warn().Err(err).Msg("heartbeat clear")
	}
}
