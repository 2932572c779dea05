package pattern

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a pattern variant. The numeric values are part of the
// configuration format.
type Kind int

const (
	KindRings  Kind = 0
	KindCenter Kind = 1
	KindSpiral Kind = 2
	KindGrid   Kind = 3
)

var kindNames = map[Kind]string{
	KindRings:  "rings",
	KindCenter: "center",
	KindSpiral: "spiral",
	KindGrid:   "grid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the names used in config files.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pattern %q", ErrInvalidParams, s)
}

// Engine generates patterns for one panel geometry. Every generation call
// clears the grid first, so results never accumulate across calls.
type Engine struct {
	geo Geometry
	reg map[Kind]Generator
}

func NewEngine(geo Geometry) *Engine {
	return &Engine{geo: geo, reg: map[Kind]Generator{}}
}

func (e *Engine) Geometry() Geometry { return e.geo }

// NewGrid allocates a grid sized for this engine.
func (e *Engine) NewGrid() *Grid { return NewGrid(e.geo.Width, e.geo.Height) }

// Register installs g as the parameterised generator for its kind.
func (e *Engine) Register(g Generator) {
	if g == nil {
		return
	}
	e.reg[g.Kind()] = g
}

func (e *Engine) Get(k Kind) (Generator, bool) { g, ok := e.reg[k]; return g, ok }

func (e *Engine) List() []Kind {
	out := make([]Kind, 0, len(e.reg))
	for k := range e.reg {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Generate runs the registered generator for k.
func (e *Engine) Generate(dst *Grid, k Kind) error {
	g, ok := e.reg[k]
	if !ok {
		return fmt.Errorf("%w: no generator registered for %s", ErrInvalidParams, k)
	}
	return e.run(dst, g)
}

func (e *Engine) CenterOnly(dst *Grid) error { return e.run(dst, CenterOnly{}) }

func (e *Engine) ConcentricRings(dst *Grid, inner, middle, outer, spacingMM float64) error {
	return e.run(dst, Rings{Inner: inner, Middle: middle, Outer: outer, SpacingMM: spacingMM})
}

func (e *Engine) Spiral(dst *Grid, spacingMM float64, turns int) error {
	return e.run(dst, Spiral{SpacingMM: spacingMM, Turns: turns})
}

func (e *Engine) Grid(dst *Grid, spacingX, spacingY int) error {
	return e.run(dst, Lattice{SpacingX: spacingX, SpacingY: spacingY})
}

func (e *Engine) CountActive(g *Grid) int { return g.Count() }

// Validate accepts any pattern with at least one lit cell. Geometric intent
// is not checked.
func (e *Engine) Validate(g *Grid) error {
	if g.Count() == 0 {
		return ErrEmptyPattern
	}
	return nil
}

func (e *Engine) run(dst *Grid, g Generator) error {
	if dst == nil || dst.Width() != e.geo.Width || dst.Height() != e.geo.Height {
		return fmt.Errorf("%w: grid does not match %dx%d panel", ErrInvalidParams, e.geo.Width, e.geo.Height)
	}
	return g.Generate(dst, e.geo)
}
