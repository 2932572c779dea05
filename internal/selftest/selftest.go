// Package selftest runs wiring checks on the panel, one LED at a time.
package selftest

import (
	"fmt"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

type Kind string

const (
	None       Kind = ""
	IndexSweep Kind = "index_sweep"
	RGBTest    Kind = "rgb_channels"
	RowSweep   Kind = "row_sweep"
	Corners    Kind = "corners"
)

// Kinds lists the runnable plans.
var Kinds = []Kind{IndexSweep, RGBTest, RowSweep, Corners}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown self-test %q", s)
}

// Display is the part of the matrix driver a plan drives.
type Display interface {
	Width() int
	Height() int
	SetPixel(x, y int, c matrix.Color) error
	Clear() error
}

type Plan struct{ Kind Kind }

type Runner struct {
	plan   Plan
	step   int
	errors []error
}

func NewRunner(plan Plan) *Runner { return &Runner{plan: plan} }
func (r *Runner) Kind() Kind      { return r.plan.Kind }

// Errors lists the failed steps so far.
func (r *Runner) Errors() []error { return r.errors }

// Steps is the number of steps the plan takes on d.
func (r *Runner) Steps(d Display) int {
	w, h := d.Width(), d.Height()
	switch r.plan.Kind {
	case IndexSweep:
		return w * h
	case RGBTest:
		return 4
	case RowSweep:
		return h
	case Corners:
		return 4
	}
	return 0
}

// Step lights the next LED of the plan; returns false when complete.
func (r *Runner) Step(d Display) bool {
	if r.step >= r.Steps(d) {
		if err := d.Clear(); err != nil {
			r.errors = append(r.errors, err)
		}
		return false
	}
	x, y, c := r.target(d)
	if err := d.SetPixel(x, y, c); err != nil {
		r.errors = append(r.errors, fmt.Errorf("step %d: %w", r.step, err))
	}
	r.step++
	return true
}

func (r *Runner) target(d Display) (int, int, matrix.Color) {
	w, h := d.Width(), d.Height()
	switch r.plan.Kind {
	case IndexSweep:
		return r.step % w, r.step / w, matrix.White
	case RGBTest:
		return w / 2, h / 2, []matrix.Color{matrix.Red, matrix.Green, matrix.Blue, matrix.White}[r.step]
	case RowSweep:
		// walks every row address in both halves
		return r.step % w, r.step, matrix.Green
	case Corners:
		pts := [][2]int{{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}}
		return pts[r.step][0], pts[r.step][1], matrix.Red
	}
	return 0, 0, matrix.Off
}
