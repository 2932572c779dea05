package pattern

import "image"

// Grid is a height x width occupancy map: which LEDs should be lit for the
// current illumination step. It is independent of the panel hardware state.
type Grid struct {
	w, h  int
	cells []bool
}

func NewGrid(width, height int) *Grid {
	return &Grid{w: width, h: height, cells: make([]bool, width*height)}
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) In(x, y int) bool { return x >= 0 && x < g.w && y >= 0 && y < g.h }

func (g *Grid) At(x, y int) bool {
	if !g.In(x, y) {
		return false
	}
	return g.cells[y*g.w+x]
}

// Set marks (x, y) lit. Out-of-range coordinates are ignored.
func (g *Grid) Set(x, y int) bool {
	if !g.In(x, y) {
		return false
	}
	g.cells[y*g.w+x] = true
	return true
}

func (g *Grid) Reset() {
	for i := range g.cells {
		g.cells[i] = false
	}
}

// Count is the number of lit cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

// Points lists lit cells in row-major order, the order the sequence visits
// them and the order they are exported.
func (g *Grid) Points() []image.Point {
	out := make([]image.Point, 0, g.Count())
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			if g.cells[y*g.w+x] {
				out = append(out, image.Point{X: x, Y: y})
			}
		}
	}
	return out
}
