// Package preview prints the lit panel row to the terminal, for running the
// sim backend without hardware.
package preview

import (
	"image"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

// Console draws one panel row per latch: the panel only ever shows one
// addressed row pair, so a single strip is a faithful view.
type Console struct {
	mu       sync.Mutex
	drawer   display.Drawer
	width    int
	throttle time.Duration
	lastEmit time.Time
	frames   int
}

// New prints to the terminal through periph.io's console screen.
func New(width int) *Console {
	return NewWithDrawer(screen.New(width), width)
}

func NewWithDrawer(d display.Drawer, width int) *Console {
	return &Console{drawer: d, width: width, throttle: 20 * time.Millisecond}
}

// Attach draws every row the emulator latches.
func (c *Console) Attach(emu *matrix.Emulator) {
	emu.OnLatch(func(_ int, top, bottom []matrix.Color) {
		row := top
		if !lit(top) && lit(bottom) {
			row = bottom
		}
		_ = c.ShowRow(row)
	})
}

// ShowRow draws one strip. Calls within the throttle window are skipped,
// except for all-off rows so a blank is never missed.
func (c *Console) ShowRow(row []matrix.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if lit(row) && c.lastEmit.Add(c.throttle).After(now) {
		return nil
	}
	c.lastEmit = now
	img := image.NewNRGBA(image.Rect(0, 0, c.width, 1))
	for x := 0; x < c.width && x < len(row); x++ {
		img.SetNRGBA(x, 0, row[x].NRGBA())
	}
	c.frames++
	return c.drawer.Draw(c.drawer.Bounds(), img, image.Point{})
}

// Frames counts drawn strips.
func (c *Console) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *Console) Halt() error { return c.drawer.Halt() }

func lit(row []matrix.Color) bool {
	for _, v := range row {
		if v != matrix.Off {
			return true
		}
	}
	return false
}
