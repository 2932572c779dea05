package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/coreman2200/funtimes-ptycho/internal/camera"
	"github.com/coreman2200/funtimes-ptycho/internal/clock"
	"github.com/coreman2200/funtimes-ptycho/internal/config"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pins"
	"github.com/coreman2200/funtimes-ptycho/internal/selftest"
	"github.com/coreman2200/funtimes-ptycho/internal/sequence"
	"github.com/coreman2200/funtimes-ptycho/internal/serialcmd"
	"github.com/coreman2200/funtimes-ptycho/internal/ws"
)

// hostLink is an in-memory host connection.
type hostLink struct {
	mu  sync.Mutex
	in  bytes.Buffer
	out bytes.Buffer
}

func (l *hostLink) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.in.Len()
}

func (l *hostLink) ReadByte() (byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.in.ReadByte()
	if err != nil {
		return 0, serialcmd.ErrTimeout
	}
	return b, nil
}

func (l *hostLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Write(p)
}

func (l *hostLink) Inject(b []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, _ := l.in.Write(b)
	return n
}

func (l *hostLink) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := strings.TrimSpace(l.out.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type rig struct {
	core *Core
	link *hostLink
	pins *pins.Set
	clk  *clock.Fake
}

func newRig(t *testing.T, mutate func(*config.Config)) *rig {
	t.Helper()
	cfg := config.Default()
	cfg.Pattern.Kind = "center"
	cfg.Sequence.StartDelay = 0
	if mutate != nil {
		mutate(cfg)
	}
	r := &rig{
		link: &hostLink{},
		pins: pins.OpenSim(matrix.Geometry{Width: cfg.Matrix.Width, Height: cfg.Matrix.Height}),
		clk:  clock.NewFake(time.Unix(0, 0)),
	}
	c, err := InitCore(cfg, HW{Pins: r.pins, Link: r.link, Clock: r.clk}, zerolog.Nop())
	require.NoError(t, err)
	r.core = c
	return r
}

func (r *rig) send(s string) { r.link.Inject([]byte(s)) }

func TestInitCoreBlanksPanelAndLoadsPattern(t *testing.T) {
	r := newRig(t, nil)
	emu := r.pins.Emulator
	assert.True(t, emu.Blanked())
	assert.Nil(t, emu.Lit())
	assert.Equal(t, 1, r.core.Grid().Count())
	assert.Equal(t, sequence.Idle, r.core.Seq.State)

	st := r.core.Status()
	assert.Equal(t, "center", st.Pattern)
	assert.Equal(t, 1, st.Lit)
	assert.False(t, st.Idle)
}

func TestInitCoreRejectsBadInput(t *testing.T) {
	cfg := config.Default()
	_, err := InitCore(cfg, HW{Link: &hostLink{}}, zerolog.Nop())
	assert.Error(t, err, "pins are required")

	cfg.Sequence.Color = 9
	_, err = InitCore(cfg, HW{Pins: pins.OpenSim(matrix.Geometry{Width: 64, Height: 64}), Link: &hostLink{}}, zerolog.Nop())
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Pattern.Kind = "hexagon"
	_, err = InitCore(cfg, HW{Pins: pins.OpenSim(matrix.Geometry{Width: 64, Height: 64}), Link: &hostLink{}}, zerolog.Nop())
	assert.Error(t, err)
}

func TestFrameLightsOneLEDForTheExposure(t *testing.T) {
	r := newRig(t, nil)
	emu := r.pins.Emulator
	var atPulse []matrix.Pixel
	r.core.Camera.OnPulse(func(int, time.Time) { atPulse = emu.Lit() })

	r.core.StartRun()
	r.core.Tick()

	assert.Equal(t, []matrix.Pixel{{X: 32, Y: 32, C: matrix.Green}}, atPulse)
	assert.Nil(t, emu.Lit(), "panel blanked after the frame")
	assert.Equal(t, 1, r.core.Camera.Count())
	assert.Equal(t, 2*time.Second, r.clk.Slept(), "pre, pulse and post delays")
	assert.Equal(t, sequence.Done, r.core.Seq.State)
	assert.Equal(t, 1, r.core.Status().Frames)
	assert.NotEmpty(t, r.core.Status().RunID)
}

func TestRingRunTriggersOncePerPoint(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Pattern.Kind = "rings" })
	want := r.core.Grid().Count()
	require.Greater(t, want, 1)

	r.core.StartRun()
	for i := 0; i < want+5; i++ {
		r.core.Tick()
	}
	assert.Equal(t, sequence.Done, r.core.Seq.State)
	assert.Equal(t, want, r.core.Camera.Count())
	assert.Equal(t, want, r.core.Seq.Frames())
	assert.Zero(t, r.core.Seq.Failures())
}

func TestVisStartExportsPatternThenStreamsLEDs(t *testing.T) {
	r := newRig(t, nil)
	r.core.StartRun()
	r.send("v")
	r.core.Tick()

	assert.Equal(t, []string{
		"Starting visualization mode",
		"PATTERN_START",
		"PATTERN,32,32",
		"PATTERN_END",
		"LED,32,32,2",
	}, r.link.lines())
}

func TestRepeatedVisStartExportsOnce(t *testing.T) {
	r := newRig(t, nil)
	r.send("v")
	r.core.Tick()
	r.send("v")
	r.core.Tick()

	assert.Equal(t, []string{
		"Starting visualization mode",
		"PATTERN_START",
		"PATTERN,32,32",
		"PATTERN_END",
	}, r.link.lines())
}

func TestExportWithoutVisIsSilent(t *testing.T) {
	r := newRig(t, nil)
	r.send("p")
	r.core.Tick()
	assert.Equal(t, []string{"Exporting LED pattern..."}, r.link.lines())
}

func TestIdleCommandsSuspendTheRun(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Pattern.Kind = "grid" })
	r.core.StartRun()

	r.send("i")
	r.core.Tick()
	assert.True(t, r.core.Idle.IsIdle())
	assert.Zero(t, r.core.Seq.Frames())
	assert.True(t, r.pins.Emulator.Blanked())

	r.core.Tick()
	assert.Zero(t, r.core.Seq.Frames())

	r.send("a")
	r.core.Tick()
	assert.False(t, r.core.Idle.IsIdle())
	assert.Equal(t, 1, r.core.Seq.Frames())
	assert.Equal(t, []string{"Entering idle mode (manual)", "Exiting idle mode (manual)"}, r.link.lines())
}

func TestIdleAfterTimeoutOnceTheRunIsDone(t *testing.T) {
	r := newRig(t, nil)
	r.core.StartRun()
	r.core.Tick()
	require.Equal(t, sequence.Done, r.core.Seq.State)

	r.clk.Advance(29 * time.Minute)
	r.core.Tick()
	assert.False(t, r.core.Status().Idle)

	r.clk.Advance(time.Minute)
	r.core.Tick()
	assert.True(t, r.core.Status().Idle)

	r.send("x")
	r.core.Tick()
	assert.False(t, r.core.Status().Idle)
	assert.Contains(t, r.link.lines(), "Exiting idle mode due to serial activity")
}

func TestCameraTimeoutIsCountedAndCleared(t *testing.T) {
	r := newRig(t, nil)
	busy, ok := r.pins.Busy.(*gpiotest.Pin)
	require.True(t, ok)
	require.NoError(t, busy.Out(gpio.High))

	r.core.StartRun()
	r.core.Tick()

	assert.Equal(t, 1, r.core.Seq.Failures())
	assert.Equal(t, 1, r.core.Status().Failures)
	assert.Equal(t, camera.TimedOut, r.core.Camera.Result())
	assert.Equal(t, camera.CodeNone, r.core.Camera.ErrorCode())
	assert.Nil(t, r.pins.Emulator.Lit())
}

func TestCameraCommandsThroughTheLoop(t *testing.T) {
	r := newRig(t, nil)

	r.send("C,S,1,abc\n")
	r.core.Tick()
	assert.Equal(t, 400*time.Millisecond, r.core.Camera.PreDelay())
	assert.Equal(t, 1, r.core.Status().FormatErrors)

	r.send("C,S,1,200,50,1000\n")
	for i := 0; i < 4; i++ {
		r.core.Tick()
	}
	assert.Equal(t, 200*time.Millisecond, r.core.Camera.PreDelay())
	assert.Equal(t, 50*time.Millisecond, r.core.Camera.PulseWidth())
	assert.Equal(t, time.Second, r.core.Camera.PostDelay())

	lines := r.link.lines()
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "ERROR:"), lines[0])
	assert.Contains(t, lines, "Camera settings updated")
}

func TestControlSwitchesPattern(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Pattern.Rings.Outer = 40 })

	r.core.Control(map[string]any{"pattern": "grid"})
	r.core.Tick()
	assert.Equal(t, "grid", r.core.Status().Pattern)
	assert.Equal(t, 256, r.core.Status().Lit)

	r.core.Control(map[string]any{"pattern": "rings"})
	r.core.Tick()
	assert.Equal(t, "grid", r.core.Status().Pattern, "invalid ring radii keep the previous pattern")
	assert.Equal(t, 256, r.core.Grid().Count())

	r.core.Control(map[string]any{"pattern": "hexagon"})
	r.core.Tick()
	assert.Equal(t, "grid", r.core.Status().Pattern)
}

func TestControlSelfTestSuspendsRun(t *testing.T) {
	r := newRig(t, nil)
	r.core.StartRun()
	r.core.Control(map[string]any{"runTest": string(selftest.Corners)})

	r.core.Tick()
	assert.True(t, r.core.SelfTesting())
	assert.Equal(t, string(selftest.Corners), r.core.Status().SelfTest)
	assert.Len(t, r.pins.Emulator.Lit(), 1)
	assert.Zero(t, r.core.Seq.Frames())

	for i := 0; i < 4; i++ {
		r.core.Tick()
	}
	assert.False(t, r.core.SelfTesting())
	assert.Nil(t, r.pins.Emulator.Lit())

	r.core.Tick()
	assert.Equal(t, 1, r.core.Seq.Frames())
}

func TestControlSendFeedsCommandProcessor(t *testing.T) {
	r := newRig(t, nil)
	r.core.Control(map[string]any{"send": "v"})
	r.core.Tick()
	assert.True(t, r.core.Vis.Enabled())
}

func TestControlSequenceActions(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Pattern.Kind = "grid" })
	r.core.Control(map[string]any{"sequence": "start"})
	r.core.Tick()
	assert.Equal(t, 1, r.core.Seq.Frames())

	r.core.Control(map[string]any{"sequence": "pause"})
	r.core.Tick()
	assert.Equal(t, 1, r.core.Seq.Frames())
	assert.Equal(t, "paused", r.core.Status().Sequence)

	r.core.Control(map[string]any{"sequence": "resume"})
	r.core.Tick()
	assert.Equal(t, 2, r.core.Seq.Frames())

	r.core.Control(map[string]any{"sequence": "stop"})
	r.core.Tick()
	assert.Equal(t, sequence.Idle, r.core.Seq.State)
	assert.Nil(t, r.pins.Emulator.Lit())
}

func TestDirtyPanelIsRefreshedWhenNothingDraws(t *testing.T) {
	r := newRig(t, nil)
	r.core.Matrix.SetDirty(true)
	before := r.pins.Emulator.Latches()
	r.core.Tick()
	assert.False(t, r.core.Matrix.Dirty())
	assert.Equal(t, before+64, r.pins.Emulator.Latches())
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, func(c *config.Config) { c.Sequence.Tick = time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.core.Run(ctx) }()

	require.Eventually(t, func() bool { return r.core.Status().Sequence == string(sequence.Done) }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, r.pins.Emulator.Blanked())
}

func TestHealthServesStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Pattern.Kind = "center"
	hub := ws.NewHub(zerolog.Nop())
	set := pins.OpenSim(matrix.Geometry{Width: 64, Height: 64})
	_, err := InitCore(cfg, HW{Pins: set, Link: &hostLink{}, Clock: clock.NewFake(time.Unix(0, 0)), Hub: hub}, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "center", body.Status.Pattern)
	assert.Equal(t, 1, body.Status.Lit)
}
