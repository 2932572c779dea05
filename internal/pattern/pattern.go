// Package pattern generates illumination patterns: occupancy grids that map a
// physical LED spacing in millimetres onto discrete panel coordinates.
package pattern

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	ErrInvalidParams = errors.New("pattern: invalid parameters")
	ErrEmptyPattern  = errors.New("pattern: no LEDs lit")
)

// Geometry is the physical description of the panel.
type Geometry struct {
	Width          int
	Height         int
	PhysicalSizeMM float64
	PitchMM        float64
}

// Center uses integer division, so an even panel has its centre just below
// and right of the optical axis.
func (g Geometry) Center() image.Point {
	return image.Point{X: g.Width / 2, Y: g.Height / 2}
}

// LEDSkip is the sampling stride that approximates spacingMM on this panel,
// never below one.
func (g Geometry) LEDSkip(spacingMM float64) int {
	if g.PitchMM <= 0 {
		return 1
	}
	skip := int(math.Round(spacingMM / g.PitchMM))
	if skip < 1 {
		return 1
	}
	return skip
}

func (g Geometry) minSide() int {
	return min(g.Width, g.Height)
}

// Generator fills a grid for one pattern variant.
type Generator interface {
	Kind() Kind
	Generate(dst *Grid, geo Geometry) error
}

// CenterOnly lights the single centre LED.
type CenterOnly struct{}

func (CenterOnly) Kind() Kind { return KindCenter }

func (CenterOnly) Generate(dst *Grid, geo Geometry) error {
	dst.Reset()
	c := geo.Center()
	if !dst.Set(c.X, c.Y) {
		return fmt.Errorf("%w: centre (%d,%d) outside %dx%d", ErrInvalidParams, c.X, c.Y, geo.Width, geo.Height)
	}
	return nil
}

// Rings lights LEDs within one LED unit of any of three radii, sampled on
// the skip-stride lattice (x+y) mod skip == 0.
type Rings struct {
	Inner, Middle, Outer float64
	SpacingMM            float64
}

func (Rings) Kind() Kind { return KindRings }

func (r Rings) Generate(dst *Grid, geo Geometry) error {
	dst.Reset()
	limit := float64(geo.minSide()) / 2
	if r.Outer >= limit {
		return fmt.Errorf("%w: outer radius %.1f reaches the panel edge %.1f", ErrInvalidParams, r.Outer, limit)
	}
	skip := geo.LEDSkip(r.SpacingMM)
	c := geo.Center()
	n := 0
	for y := 0; y < geo.Height; y++ {
		for x := 0; x < geo.Width; x++ {
			if (x+y)%skip != 0 {
				continue
			}
			d := math.Hypot(float64(x-c.X), float64(y-c.Y))
			if math.Abs(d-r.Inner) < 1 || math.Abs(d-r.Middle) < 1 || math.Abs(d-r.Outer) < 1 {
				dst.Set(x, y)
				n++
			}
		}
	}
	if n == 0 {
		return ErrEmptyPattern
	}
	return nil
}

// spiralStep is the angular increment in radians.
const spiralStep = 0.1

// Spiral walks an Archimedean spiral from the centre out to the largest
// radius that fits, over Turns full turns. The centre is always lit.
type Spiral struct {
	SpacingMM float64
	Turns     int
}

func (Spiral) Kind() Kind { return KindSpiral }

func (s Spiral) Generate(dst *Grid, geo Geometry) error {
	dst.Reset()
	c := geo.Center()
	if !dst.Set(c.X, c.Y) {
		return fmt.Errorf("%w: centre (%d,%d) outside %dx%d", ErrInvalidParams, c.X, c.Y, geo.Width, geo.Height)
	}
	n := 1
	skip := geo.LEDSkip(s.SpacingMM)
	maxR := float64(min(c.X, c.Y))
	end := 2 * math.Pi * float64(s.Turns)
	for i := 0; ; i++ {
		a := float64(i) * spiralStep
		if a >= end {
			break
		}
		r := a / (2 * math.Pi) * maxR / float64(s.Turns)
		x := c.X + int(math.Round(r*math.Cos(a)))
		y := c.Y + int(math.Round(r*math.Sin(a)))
		if dst.In(x, y) && (x+y)%skip == 0 {
			dst.Set(x, y)
			n++
		}
	}
	if n == 0 {
		return ErrEmptyPattern
	}
	return nil
}

// Lattice lights a regular grid with the given integer strides, starting at
// the origin.
type Lattice struct {
	SpacingX, SpacingY int
}

func (Lattice) Kind() Kind { return KindGrid }

func (l Lattice) Generate(dst *Grid, geo Geometry) error {
	dst.Reset()
	if l.SpacingX < 1 || l.SpacingY < 1 {
		return fmt.Errorf("%w: grid spacing %dx%d", ErrInvalidParams, l.SpacingX, l.SpacingY)
	}
	n := 0
	for y := 0; y < geo.Height; y += l.SpacingY {
		for x := 0; x < geo.Width; x += l.SpacingX {
			if dst.Set(x, y) {
				n++
			}
		}
	}
	if n == 0 {
		return ErrEmptyPattern
	}
	return nil
}
