package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-ptycho/internal/pins"
)

type Matrix struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// PhysicalSizeMM is the edge length of the LED field.
	PhysicalSizeMM float64 `yaml:"physical_size_mm"`
	PitchMM        float64 `yaml:"pitch_mm"`
}

type Pins struct {
	Backend string     `yaml:"backend"` // "periph" | "gpiocdev" | "sim"
	Chip    string     `yaml:"chip,omitempty"`
	Lines   pins.Names `yaml:"lines"`
}

type Rings struct {
	Inner  float64 `yaml:"inner"`
	Middle float64 `yaml:"middle"`
	Outer  float64 `yaml:"outer"`
}

type Pattern struct {
	Kind      string  `yaml:"kind"` // rings | center | spiral | grid
	SpacingMM float64 `yaml:"spacing_mm"`
	Rings     Rings   `yaml:"rings"`
	Turns     int     `yaml:"turns"`
	GridX     int     `yaml:"grid_x"`
	GridY     int     `yaml:"grid_y"`
}

type Sequence struct {
	Color   int  `yaml:"color"`
	Cycles  int  `yaml:"cycles"` // <= 0 repeats forever
	Trigger bool `yaml:"trigger"`
	// WaitForReady polls the camera busy line after each pulse.
	WaitForReady bool          `yaml:"wait_for_ready"`
	StartDelay   time.Duration `yaml:"start_delay"`
	Tick         time.Duration `yaml:"tick"`
}

type Camera struct {
	Enabled      bool          `yaml:"enabled"`
	PulseWidth   time.Duration `yaml:"pulse_width"`
	PreDelay     time.Duration `yaml:"pre_delay"`
	PostDelay    time.Duration `yaml:"post_delay"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
	RequireReady bool          `yaml:"require_ready"`
}

type Idle struct {
	Timeout       time.Duration `yaml:"timeout"`
	BlinkInterval time.Duration `yaml:"blink_interval"`
	BlinkDuration time.Duration `yaml:"blink_duration"`
}

type Serial struct {
	Device       string        `yaml:"device"` // empty uses stdin/stdout
	Baud         int           `yaml:"baud"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	DrainOnError bool          `yaml:"drain_on_error"`
}

type Vis struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
	Preview  bool          `yaml:"preview"`
}

type HTTP struct {
	Addr string `yaml:"addr"` // empty disables the server
}

type MQTT struct {
	Broker   string `yaml:"broker"` // empty disables events
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Config struct {
	Matrix   Matrix   `yaml:"matrix"`
	Pins     Pins     `yaml:"pins"`
	Pattern  Pattern  `yaml:"pattern"`
	Sequence Sequence `yaml:"sequence"`
	Camera   Camera   `yaml:"camera"`
	Idle     Idle     `yaml:"idle"`
	Serial   Serial   `yaml:"serial"`
	Vis      Vis      `yaml:"vis"`
	HTTP     HTTP     `yaml:"http"`
	MQTT     MQTT     `yaml:"mqtt"`
	Log      Log      `yaml:"log"`
}

// Default is the stock 64x64, 2mm pitch panel with ring illumination and a
// camera triggered on every frame.
func Default() *Config {
	return &Config{
		Matrix: Matrix{Width: 64, Height: 64, PhysicalSizeMM: 128, PitchMM: 2},
		Pins:   Pins{Backend: pins.BackendSim, Chip: "gpiochip0", Lines: pins.DefaultNames()},
		Pattern: Pattern{
			Kind:      "rings",
			SpacingMM: 4,
			Rings:     Rings{Inner: 16, Middle: 24, Outer: 31},
			Turns:     3,
			GridX:     4,
			GridY:     4,
		},
		Sequence: Sequence{
			Color:        2,
			Cycles:       1,
			Trigger:      true,
			WaitForReady: true,
			StartDelay:   2 * time.Second,
			Tick:         10 * time.Millisecond,
		},
		Camera: Camera{
			Enabled:      true,
			PulseWidth:   100 * time.Millisecond,
			PreDelay:     400 * time.Millisecond,
			PostDelay:    1500 * time.Millisecond,
			ReadyTimeout: 5 * time.Second,
		},
		Idle: Idle{
			Timeout:       30 * time.Minute,
			BlinkInterval: time.Minute,
			BlinkDuration: 500 * time.Millisecond,
		},
		Serial: Serial{Baud: 9600, Timeout: 5 * time.Second, Retries: 3},
		Vis:    Vis{Interval: 100 * time.Millisecond},
		HTTP:   HTTP{Addr: ":8080"},
		MQTT:   MQTT{ClientID: "ptycho", Topic: "ptycho/events"},
		Log:    Log{Level: "info"},
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	m := c.Matrix
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("config: matrix %dx%d", m.Width, m.Height)
	}
	if m.Height%2 != 0 || m.Height/2 > 32 {
		return fmt.Errorf("config: matrix height %d is not two halves of at most 32 rows", m.Height)
	}
	if m.PitchMM <= 0 {
		return fmt.Errorf("config: pitch_mm %.2f", m.PitchMM)
	}
	if c.Sequence.Color < 0 || c.Sequence.Color > 7 {
		return fmt.Errorf("config: sequence color %d outside 0..7", c.Sequence.Color)
	}
	if c.Sequence.Tick <= 0 {
		return fmt.Errorf("config: sequence tick %v", c.Sequence.Tick)
	}
	switch c.Pins.Backend {
	case pins.BackendSim, pins.BackendPeriph, pins.BackendGPIOCdev:
	default:
		return fmt.Errorf("config: unknown pins backend %q", c.Pins.Backend)
	}
	return nil
}

// Load reads path over the defaults, so a partial file only overrides what
// it names.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
