package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ptycho/internal/camera"
	"github.com/coreman2200/funtimes-ptycho/internal/clock"
	"github.com/coreman2200/funtimes-ptycho/internal/config"
	diag "github.com/coreman2200/funtimes-ptycho/internal/diagnostics"
	"github.com/coreman2200/funtimes-ptycho/internal/emitter"
	"github.com/coreman2200/funtimes-ptycho/internal/idle"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
	"github.com/coreman2200/funtimes-ptycho/internal/pattern"
	"github.com/coreman2200/funtimes-ptycho/internal/pins"
	"github.com/coreman2200/funtimes-ptycho/internal/preview"
	"github.com/coreman2200/funtimes-ptycho/internal/selftest"
	"github.com/coreman2200/funtimes-ptycho/internal/sequence"
	"github.com/coreman2200/funtimes-ptycho/internal/serialcmd"
	"github.com/coreman2200/funtimes-ptycho/internal/vis"
	"github.com/coreman2200/funtimes-ptycho/internal/ws"
)

// Link is the host connection: commands in, events and diagnostics out.
type Link interface {
	serialcmd.Source
	io.Writer
}

// injector is implemented by links that accept bytes from other sources.
type injector interface {
	Inject(b []byte) int
}

// HW bundles what the core is wired to. Hub, Events and Preview are
// optional.
type HW struct {
	Pins    *pins.Set
	Link    Link
	Clock   clock.Clock
	Hub     *ws.Hub
	Events  *emitter.MQTTEmitter
	Preview *preview.Console
}

type Core struct {
	Matrix   *matrix.Driver
	Patterns *pattern.Engine
	Camera   *camera.Trigger
	Idle     *idle.Manager
	Vis      *vis.Sink
	Console  *vis.Console
	Commands *serialcmd.Processor
	Seq      *sequence.Player

	cfg    *config.Config
	hw     HW
	clk    clock.Clock
	log    zerolog.Logger
	grid   *pattern.Grid
	kind   pattern.Kind
	runID  string
	test   *selftest.Runner
	ctrl   chan map[string]any
	mu     sync.RWMutex
	status Status
}

// InitCore builds every component from cfg, brings the panel to a blank
// state and generates the configured pattern. The sequence is loaded but not
// started.
func InitCore(cfg *config.Config, hw HW, logger zerolog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Pins == nil || hw.Link == nil {
		return nil, fmt.Errorf("app: pins and link are required")
	}
	clk := hw.Clock
	if clk == nil {
		clk = clock.Real()
	}
	c := &Core{cfg: cfg, hw: hw, clk: clk, log: logger, ctrl: make(chan map[string]any, 16)}

	// 1) Panel
	geo := matrix.Geometry{Width: cfg.Matrix.Width, Height: cfg.Matrix.Height}
	if hw.Preview != nil && hw.Pins.Emulator != nil {
		hw.Preview.Attach(hw.Pins.Emulator)
	}
	drv, err := matrix.New(hw.Pins.Matrix, geo, logger.With().Str("component", "matrix").Logger())
	if err != nil {
		return nil, err
	}
	if err := drv.Begin(); err != nil {
		return nil, err
	}
	c.Matrix = drv

	// 2) Patterns
	c.Patterns = pattern.NewEngine(pattern.Geometry{
		Width:          cfg.Matrix.Width,
		Height:         cfg.Matrix.Height,
		PhysicalSizeMM: cfg.Matrix.PhysicalSizeMM,
		PitchMM:        cfg.Matrix.PitchMM,
	})
	p := cfg.Pattern
	c.Patterns.Register(pattern.Rings{Inner: p.Rings.Inner, Middle: p.Rings.Middle, Outer: p.Rings.Outer, SpacingMM: p.SpacingMM})
	c.Patterns.Register(pattern.CenterOnly{})
	c.Patterns.Register(pattern.Spiral{SpacingMM: p.SpacingMM, Turns: p.Turns})
	c.Patterns.Register(pattern.Lattice{SpacingX: p.GridX, SpacingY: p.GridY})

	// 3) Camera
	cam, err := camera.New(hw.Pins.Trigger, hw.Pins.Busy, camera.Config{
		Enabled:      cfg.Camera.Enabled,
		PulseWidth:   cfg.Camera.PulseWidth,
		PreDelay:     cfg.Camera.PreDelay,
		PostDelay:    cfg.Camera.PostDelay,
		ReadyTimeout: cfg.Camera.ReadyTimeout,
		RequireReady: cfg.Camera.RequireReady,
	}, clk, logger.With().Str("component", "camera").Logger())
	if err != nil {
		return nil, err
	}
	c.Camera = cam

	// 4) Idle
	ic := idle.DefaultConfig(geo.Width, geo.Height)
	ic.Timeout, ic.BlinkInterval, ic.BlinkDuration = cfg.Idle.Timeout, cfg.Idle.BlinkInterval, cfg.Idle.BlinkDuration
	c.Idle = idle.New(drv, ic, clk, logger.With().Str("component", "idle").Logger())
	c.Idle.OnChange(c.onIdleChange)

	// 5) Host link
	c.Console = vis.NewConsole(hw.Link, cfg.Serial.Retries, clk)
	c.Vis = vis.New(c.Console, cfg.Vis.Interval, clk)
	if hw.Hub != nil {
		c.Vis.SetMirror(hw.Hub)
		hw.Hub.SetStatus(func() any { return c.Status() })
		hw.Hub.SetControl(c.Control)
	}
	if cfg.Vis.Enabled {
		c.Vis.Enable()
	}
	c.Commands = serialcmd.New(hw.Link, serialcmd.Deps{
		Idle:   c.Idle,
		Vis:    c.Vis,
		Camera: cam,
		Out:    diagPrinter{out: c.Console, hub: hw.Hub},
	}, serialcmd.Options{DrainOnError: cfg.Serial.DrainOnError}, logger.With().Str("component", "serial").Logger())

	// 6) Sequencer wiring (hooks → panel, camera, link)
	c.Seq = sequence.NewPlayer(sequence.Hooks{
		Light:   c.light,
		Expose:  c.expose,
		Blank:   drv.Clear,
		OnFrame: c.onFrame,
		OnDone:  c.onDone,
	})

	kind, err := pattern.ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	if err := c.SetPattern(kind); err != nil {
		return nil, err
	}
	c.publishStatus()
	return c, nil
}

// diagPrinter writes diagnostic lines to the host link and mirrors them to
// websocket diagnostics.
type diagPrinter struct {
	out *vis.Console
	hub *ws.Hub
}

func (p diagPrinter) Println(line string) bool {
	ok := p.out.Println(line)
	if p.hub != nil {
		p.hub.PushDiag(diag.FromLine(line))
	}
	return ok
}

func (c *Core) pushDiag(d diag.Diagnostic) {
	if c.hw.Hub != nil {
		c.hw.Hub.PushDiag(d)
	}
}

func (c *Core) emit(kind string, ok bool, detail map[string]any) {
	c.hw.Events.Emit(emitter.Event{RunID: c.runID, Kind: kind, Time: c.clk.Now(), OK: ok, Detail: detail})
}
