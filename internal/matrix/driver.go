// Package matrix drives a dual-half RGB shift-register LED panel by
// bit-banging its connector lines: one clock, one latch, one blank, five row
// address lines and six color lines (R/G/B for each half).
//
// The panel keeps no framebuffer. Every SetPixel shifts a full row of column
// data through the clock line, so one LED change costs Width clock pulses.
package matrix

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
)

var (
	ErrInvalidCoordinate = errors.New("matrix: coordinate out of range")
	ErrInvalidColor      = errors.New("matrix: color out of range")
)

// clearBatch is the number of rows shifted per batch by Clear.
const clearBatch = 8

// Line is one output line of the panel connector. Any periph.io gpio.PinOut
// satisfies it.
type Line interface {
	Out(l gpio.Level) error
}

// Pins is the full set of connector lines. Half 0 is the top half of the
// panel (rows [0, Height/2)), half 1 the bottom.
type Pins struct {
	Blank Line
	Clock Line
	Latch Line
	Addr  [AddrLines]Line

	R0, G0, B0 Line
	R1, G1, B1 Line
}

func (p Pins) validate() error {
	named := map[string]Line{
		"blank": p.Blank, "clock": p.Clock, "latch": p.Latch,
		"r0": p.R0, "g0": p.G0, "b0": p.B0,
		"r1": p.R1, "g1": p.G1, "b1": p.B1,
	}
	for i, l := range p.Addr {
		named[fmt.Sprintf("a%d", i)] = l
	}
	for name, l := range named {
		if l == nil {
			return fmt.Errorf("matrix: line %s not wired", name)
		}
	}
	return nil
}

// Geometry is the panel size in LEDs. Height must be even; the two halves
// are stacked and share the address lines.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) Half() int { return g.Height / 2 }

func (g Geometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("matrix: invalid geometry %dx%d", g.Width, g.Height)
	}
	if g.Height%2 != 0 {
		return fmt.Errorf("matrix: height %d is not split into two halves", g.Height)
	}
	return nil
}

// data line slots, in the order the color lines are driven.
const (
	slotG0 = iota
	slotG1
	slotR0
	slotR1
	slotB0
	slotB1
	numSlots
)

type Driver struct {
	pins Pins
	geo  Geometry
	addr []uint8

	data  [numSlots]Line
	level [numSlots]gpio.Level
	known [numSlots]bool

	dirty bool
	err   error
	log   zerolog.Logger
}

// New validates the wiring and geometry. The hardware is untouched until
// Begin.
func New(pins Pins, geo Geometry, logger zerolog.Logger) (*Driver, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}
	if err := pins.validate(); err != nil {
		return nil, err
	}
	addr, err := buildAddressCache(geo.Height, geo.Half())
	if err != nil {
		return nil, err
	}
	d := &Driver{
		pins:  pins,
		geo:   geo,
		addr:  addr,
		dirty: true,
		log:   logger,
	}
	d.data = [numSlots]Line{pins.G0, pins.G1, pins.R0, pins.R1, pins.B0, pins.B1}
	return d, nil
}

// Begin blanks the output before anything else is driven, then clears every
// row so the panel starts from a known all-off state.
func (d *Driver) Begin() error {
	d.err = nil
	d.out(d.pins.Blank, gpio.High)
	if d.err != nil {
		return fmt.Errorf("matrix: begin: %w", d.err)
	}
	d.log.Debug().Int("width", d.geo.Width).Int("height", d.geo.Height).Msg("panel initialised")
	return d.Clear()
}

func (d *Driver) Width() int  { return d.geo.Width }
func (d *Driver) Height() int { return d.geo.Height }

// RowAddress returns the cached address for row y.
func (d *Driver) RowAddress(y int) (uint8, bool) {
	if y < 0 || y >= len(d.addr) {
		return 0, false
	}
	return d.addr[y], true
}

// Dirty reports whether the output may not reflect the intended pattern.
// It is advisory: callers set it to request a forced refresh.
func (d *Driver) Dirty() bool         { return d.dirty }
func (d *Driver) SetDirty(dirty bool) { d.dirty = dirty }

// SetPixel lights (x, y) with c on the addressed row and shifts zeros into
// every other column. Invalid input is rejected before any line is touched.
func (d *Driver) SetPixel(x, y int, c Color) error {
	if x < 0 || x >= d.geo.Width || y < 0 || y >= d.geo.Height {
		return fmt.Errorf("%w: (%d,%d)", ErrInvalidCoordinate, x, y)
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidColor, c)
	}
	d.err = nil
	top := y < d.geo.Half()

	d.out(d.pins.Blank, gpio.High)
	d.out(d.pins.Latch, gpio.High)
	d.selectRow(y)

	// The lines may still carry the previous target color when that target
	// was the last column.
	d.drive(top, Off)
	for i := 0; i < d.geo.Width; i++ {
		switch i {
		case x:
			d.drive(top, c)
		case x + 1:
			d.drive(top, Off)
		}
		d.pulse(d.pins.Clock)
	}

	d.out(d.pins.Latch, gpio.Low)
	d.out(d.pins.Blank, gpio.Low)

	if d.err != nil {
		d.dirty = true
		return fmt.Errorf("matrix: set pixel (%d,%d): %w", x, y, d.err)
	}
	d.dirty = false
	return nil
}

// Clear shifts zeros into every row and leaves the output blanked.
func (d *Driver) Clear() error {
	d.err = nil
	d.out(d.pins.Blank, gpio.High)
	for i := range d.data {
		d.known[i] = false
	}
	d.drive(true, Off)
	d.drive(false, Off)

	for batch := 0; batch < d.geo.Height; batch += clearBatch {
		end := min(batch+clearBatch, d.geo.Height)
		for y := batch; y < end; y++ {
			d.out(d.pins.Latch, gpio.High)
			d.selectRow(y)
			for i := 0; i < d.geo.Width; i++ {
				d.pulse(d.pins.Clock)
			}
			d.out(d.pins.Latch, gpio.Low)
		}
	}

	d.out(d.pins.Blank, gpio.High)
	if d.err != nil {
		d.dirty = true
		return fmt.Errorf("matrix: clear: %w", d.err)
	}
	d.dirty = false
	return nil
}

// selectRow pulses A0 to force a clean edge, then applies the cached address.
func (d *Driver) selectRow(y int) {
	d.pulse(d.pins.Addr[0])
	a := d.addr[y]
	for b, l := range d.pins.Addr {
		d.out(l, level(a&(1<<b) != 0))
	}
}

// drive sets the color lines of one half to c and the other half low. Lines
// already at the wanted level are not rewritten.
func (d *Driver) drive(top bool, c Color) {
	var want [numSlots]bool
	if top {
		want[slotG0], want[slotR0], want[slotB0] = c.G(), c.R(), c.B()
	} else {
		want[slotG1], want[slotR1], want[slotB1] = c.G(), c.R(), c.B()
	}
	for i, l := range d.data {
		v := level(want[i])
		if d.known[i] && d.level[i] == v {
			continue
		}
		if err := l.Out(v); err != nil {
			d.known[i] = false
			if d.err == nil {
				d.err = err
			}
			continue
		}
		d.level[i], d.known[i] = v, true
	}
}

func (d *Driver) pulse(l Line) {
	d.out(l, gpio.High)
	d.out(l, gpio.Low)
}

// out writes one line and keeps the first failure of the current sequence.
// The sequence always runs to completion so the panel is not left latched
// half way.
func (d *Driver) out(l Line, v gpio.Level) {
	if err := l.Out(v); err != nil && d.err == nil {
		d.err = err
	}
}

func level(b bool) gpio.Level {
	if b {
		return gpio.High
	}
	return gpio.Low
}
