// Package pins binds the panel connector and camera lines to a GPIO backend:
// periph.io host drivers, the Linux GPIO character device, or an in-process
// simulation built on the matrix emulator.
package pins

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ptycho/internal/camera"
	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

const (
	BackendPeriph   = "periph"
	BackendGPIOCdev = "gpiocdev"
	BackendSim      = "sim"
)

// Names maps each line to a backend pin name: a gpioreg name such as
// "GPIO17" for periph, a line offset such as "17" for gpiocdev. Busy is
// optional.
type Names struct {
	Blank   string    `yaml:"blank"`
	Clock   string    `yaml:"clock"`
	Latch   string    `yaml:"latch"`
	Addr    [5]string `yaml:"addr"`
	R0      string    `yaml:"r0"`
	G0      string    `yaml:"g0"`
	B0      string    `yaml:"b0"`
	R1      string    `yaml:"r1"`
	G1      string    `yaml:"g1"`
	B1      string    `yaml:"b1"`
	Trigger string    `yaml:"trigger"`
	Busy    string    `yaml:"busy"`
}

// DefaultNames is a Raspberry Pi header wiring.
func DefaultNames() Names {
	return Names{
		Blank:   "GPIO4",
		Clock:   "GPIO17",
		Latch:   "GPIO21",
		Addr:    [5]string{"GPIO22", "GPIO26", "GPIO27", "GPIO20", "GPIO24"},
		R0:      "GPIO5",
		G0:      "GPIO13",
		B0:      "GPIO6",
		R1:      "GPIO12",
		G1:      "GPIO16",
		B1:      "GPIO23",
		Trigger: "GPIO18",
	}
}

// outputs lists the output lines in request order with their roles.
func (n Names) outputs() []struct{ role, name string } {
	out := []struct{ role, name string }{
		{"blank", n.Blank}, {"clock", n.Clock}, {"latch", n.Latch},
	}
	for i, a := range n.Addr {
		out = append(out, struct{ role, name string }{fmt.Sprintf("a%d", i), a})
	}
	return append(out, []struct{ role, name string }{
		{"r0", n.R0}, {"g0", n.G0}, {"b0", n.B0},
		{"r1", n.R1}, {"g1", n.G1}, {"b1", n.B1},
		{"trigger", n.Trigger},
	}...)
}

func (n Names) Validate() error {
	seen := map[string]string{}
	for _, o := range n.outputs() {
		if o.name == "" {
			return fmt.Errorf("pins: %s not assigned", o.role)
		}
		if prev, ok := seen[o.name]; ok {
			return fmt.Errorf("pins: %s and %s share %s", prev, o.role, o.name)
		}
		seen[o.name] = o.role
	}
	if prev, ok := seen[n.Busy]; n.Busy != "" && ok {
		return fmt.Errorf("pins: busy shares %s with %s", n.Busy, prev)
	}
	return nil
}

// Set is an opened set of lines.
type Set struct {
	Matrix  matrix.Pins
	Trigger camera.Output
	// Busy is nil when no ready line is wired.
	Busy camera.Input
	// Emulator is set by the sim backend only.
	Emulator *matrix.Emulator

	closers []func() error
}

func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// assemble fills a Set from lines keyed by role.
func assemble(lines map[string]matrix.Line) *Set {
	return &Set{
		Matrix: matrix.Pins{
			Blank: lines["blank"],
			Clock: lines["clock"],
			Latch: lines["latch"],
			Addr:  [matrix.AddrLines]matrix.Line{lines["a0"], lines["a1"], lines["a2"], lines["a3"], lines["a4"]},
			R0:    lines["r0"],
			G0:    lines["g0"],
			B0:    lines["b0"],
			R1:    lines["r1"],
			G1:    lines["g1"],
			B1:    lines["b1"],
		},
		Trigger: lines["trigger"],
	}
}

// Open opens the named backend. geo is used by the sim backend.
func Open(backend string, n Names, chip string, geo matrix.Geometry, logger zerolog.Logger) (*Set, error) {
	switch backend {
	case BackendSim, "":
		return OpenSim(geo), nil
	case BackendPeriph:
		if err := n.Validate(); err != nil {
			return nil, err
		}
		return OpenPeriph(n, logger)
	case BackendGPIOCdev:
		if err := n.Validate(); err != nil {
			return nil, err
		}
		return OpenGPIOCdev(chip, n, logger)
	}
	return nil, fmt.Errorf("pins: unknown backend %q", backend)
}
