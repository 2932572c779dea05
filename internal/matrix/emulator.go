package matrix

import (
	"fmt"
	"sort"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Pixel is one visible LED.
type Pixel struct {
	X, Y int
	C    Color
}

type emuLine int

const (
	emuBlank emuLine = iota
	emuClock
	emuLatch
	emuA0
	emuA1
	emuA2
	emuA3
	emuA4
	emuR0
	emuG0
	emuB0
	emuR1
	emuG1
	emuB1
	emuLines
)

var emuNames = [emuLines]string{
	"BL", "CK", "LA", "A0", "A1", "A2", "A3", "A4",
	"R0", "G0", "B0", "R1", "G1", "B1",
}

// Emulator is a virtual panel that decodes the connector lines the way the
// shift registers do: each rising clock edge shifts one column in, the
// falling latch edge copies the register to the output stage of the row pair
// selected by the address lines, and blank gates the output.
type Emulator struct {
	mu  sync.Mutex
	geo Geometry

	levels [emuLines]gpio.Level
	writes [emuLines]int

	shift   [][2]Color
	clocks  int
	latched [2][]Color
	row     int

	latches int
	onLatch func(row int, top, bottom []Color)
}

// NewEmulator returns a powered-up virtual panel with the output blanked.
func NewEmulator(geo Geometry) *Emulator {
	e := &Emulator{geo: geo}
	e.levels[emuBlank] = gpio.High
	e.latched[0] = make([]Color, geo.Width)
	e.latched[1] = make([]Color, geo.Width)
	return e
}

// Pins returns connector lines bound to the emulator.
func (e *Emulator) Pins() Pins {
	l := func(id emuLine) Line { return &emulatedLine{e: e, id: id} }
	return Pins{
		Blank: l(emuBlank),
		Clock: l(emuClock),
		Latch: l(emuLatch),
		Addr:  [AddrLines]Line{l(emuA0), l(emuA1), l(emuA2), l(emuA3), l(emuA4)},
		R0:    l(emuR0),
		G0:    l(emuG0),
		B0:    l(emuB0),
		R1:    l(emuR1),
		G1:    l(emuG1),
		B1:    l(emuB1),
	}
}

// OnLatch registers f to run whenever a row is latched.
func (e *Emulator) OnLatch(f func(row int, top, bottom []Color)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLatch = f
}

func (e *Emulator) set(id emuLine, l gpio.Level) {
	e.mu.Lock()
	prev := e.levels[id]
	e.levels[id] = l
	e.writes[id]++

	var notify func(int, []Color, []Color)
	var row int
	var top, bottom []Color
	switch {
	case id == emuClock && prev == gpio.Low && l == gpio.High:
		e.shiftIn()
	case id == emuLatch && prev == gpio.Low && l == gpio.High:
		e.clocks = 0
	case id == emuLatch && prev == gpio.High && l == gpio.Low:
		e.latch()
		if e.onLatch != nil {
			notify = e.onLatch
			row = e.row
			top = append([]Color(nil), e.latched[0]...)
			bottom = append([]Color(nil), e.latched[1]...)
		}
	}
	e.mu.Unlock()

	if notify != nil {
		notify(row, top, bottom)
	}
}

func (e *Emulator) bits(r, g, b emuLine) Color {
	var c Color
	if e.levels[r] == gpio.High {
		c |= Red
	}
	if e.levels[g] == gpio.High {
		c |= Green
	}
	if e.levels[b] == gpio.High {
		c |= Blue
	}
	return c
}

func (e *Emulator) shiftIn() {
	col := [2]Color{e.bits(emuR0, emuG0, emuB0), e.bits(emuR1, emuG1, emuB1)}
	e.shift = append(e.shift, col)
	if len(e.shift) > e.geo.Width {
		e.shift = e.shift[len(e.shift)-e.geo.Width:]
	}
	e.clocks++
}

func (e *Emulator) latch() {
	addr := 0
	for i := 0; i < AddrLines; i++ {
		if e.levels[emuA0+emuLine(i)] == gpio.High {
			addr |= 1 << i
		}
	}
	e.row = addr
	for x := 0; x < e.geo.Width; x++ {
		var col [2]Color
		if x < len(e.shift) {
			col = e.shift[x]
		}
		e.latched[0][x], e.latched[1][x] = col[0], col[1]
	}
	e.latches++
}

// Blanked reports whether the output stage is disabled.
func (e *Emulator) Blanked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levels[emuBlank] == gpio.High
}

// Lit returns the visible LEDs, sorted by row then column.
func (e *Emulator) Lit() []Pixel {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.levels[emuBlank] == gpio.High {
		return nil
	}
	var out []Pixel
	for half, cols := range e.latched {
		y := e.row + half*e.geo.Half()
		for x, c := range cols {
			if c != Off {
				out = append(out, Pixel{X: x, Y: y, C: c})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Latched returns the output stage contents of the given half, whether or not
// the panel is blanked.
func (e *Emulator) Latched(half int) []Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Color(nil), e.latched[half]...)
}

// Row is the address latched last.
func (e *Emulator) Row() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.row
}

// ClocksSinceLatch is the number of columns shifted in the current load.
func (e *Emulator) ClocksSinceLatch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clocks
}

// Latches counts completed row loads.
func (e *Emulator) Latches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latches
}

// Writes is the total number of line writes, a proxy for hardware toggles.
func (e *Emulator) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, w := range e.writes {
		n += w
	}
	return n
}

type emulatedLine struct {
	e  *Emulator
	id emuLine
}

func (l *emulatedLine) Out(v gpio.Level) error {
	l.e.set(l.id, v)
	return nil
}

func (l *emulatedLine) String() string { return fmt.Sprintf("emu/%s", emuNames[l.id]) }
