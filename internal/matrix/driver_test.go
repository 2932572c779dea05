package matrix

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

var panel = Geometry{Width: 64, Height: 64}

func newPanel(t *testing.T) (*Driver, *Emulator) {
	t.Helper()
	emu := NewEmulator(panel)
	d, err := New(emu.Pins(), panel, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Begin())
	return d, emu
}

func TestRowAddressCache(t *testing.T) {
	d, _ := newPanel(t)
	for y := 0; y < panel.Height; y++ {
		a, ok := d.RowAddress(y)
		require.True(t, ok)
		assert.Equal(t, uint8(y%32), a, "row %d", y)
		assert.Less(t, a, uint8(1<<AddrLines))
	}
	_, ok := d.RowAddress(panel.Height)
	assert.False(t, ok)
	_, ok = d.RowAddress(-1)
	assert.False(t, ok)
}

func TestBeginLeavesPanelBlankAndClean(t *testing.T) {
	d, emu := newPanel(t)
	assert.True(t, emu.Blanked())
	assert.False(t, d.Dirty())
	assert.Equal(t, panel.Height, emu.Latches())
	for _, c := range emu.Latched(0) {
		assert.Equal(t, Off, c)
	}
}

func TestSetPixelLightsExactlyOneLED(t *testing.T) {
	tests := []struct {
		name string
		x, y int
		c    Color
	}{
		{"top left", 0, 0, Green},
		{"top half", 10, 5, Red},
		{"last row of top half", 63, 31, Blue},
		{"first row of bottom half", 0, 32, White},
		{"bottom right", 63, 63, Red | Blue},
		{"centre", 32, 32, Green},
	}
	d, emu := newPanel(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, d.SetPixel(tt.x, tt.y, tt.c))
			assert.Equal(t, []Pixel{{X: tt.x, Y: tt.y, C: tt.c}}, emu.Lit())
			assert.Equal(t, panel.Width, emu.ClocksSinceLatch())
			assert.False(t, d.Dirty())
		})
	}
}

func TestSetPixelAfterLastColumnDoesNotBleed(t *testing.T) {
	d, emu := newPanel(t)
	require.NoError(t, d.SetPixel(63, 3, White))
	require.NoError(t, d.SetPixel(4, 3, Green))
	assert.Equal(t, []Pixel{{X: 4, Y: 3, C: Green}}, emu.Lit())
}

func TestSetPixelSwitchingHalves(t *testing.T) {
	d, emu := newPanel(t)
	require.NoError(t, d.SetPixel(7, 40, Red))
	require.NoError(t, d.SetPixel(7, 8, Blue))
	assert.Equal(t, []Pixel{{X: 7, Y: 8, C: Blue}}, emu.Lit())
}

func TestSetPixelRejectsOutOfRange(t *testing.T) {
	d, emu := newPanel(t)
	coords := [][2]int{{-1, 0}, {0, -1}, {64, 0}, {0, 64}, {100, 100}, {-5, 70}}
	for _, dirty := range []bool{true, false} {
		d.SetDirty(dirty)
		for _, c := range coords {
			before := emu.Writes()
			err := d.SetPixel(c[0], c[1], Green)
			assert.ErrorIs(t, err, ErrInvalidCoordinate)
			assert.Equal(t, dirty, d.Dirty())
			assert.Equal(t, before, emu.Writes(), "no line touched for %v", c)
		}
	}
}

func TestSetPixelRejectsBadColor(t *testing.T) {
	d, emu := newPanel(t)
	for _, c := range []Color{8, 9, 100, 255} {
		before := emu.Writes()
		assert.ErrorIs(t, d.SetPixel(1, 1, c), ErrInvalidColor)
		assert.Equal(t, before, emu.Writes())
	}
}

func TestClearAlwaysCleansAndBlanks(t *testing.T) {
	d, emu := newPanel(t)
	require.NoError(t, d.SetPixel(5, 5, White))
	d.SetDirty(true)
	require.NoError(t, d.Clear())
	assert.False(t, d.Dirty())
	assert.True(t, emu.Blanked())
	assert.Nil(t, emu.Lit())
	for half := 0; half < 2; half++ {
		for _, c := range emu.Latched(half) {
			assert.Equal(t, Off, c)
		}
	}
}

type failingLine struct{ err error }

func (f failingLine) Out(gpio.Level) error { return f.err }

func TestHardwareFailureMarksDirty(t *testing.T) {
	emu := NewEmulator(panel)
	pins := emu.Pins()
	boom := errors.New("line stuck")
	pins.Clock = failingLine{err: boom}
	d, err := New(pins, panel, zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, d.Clear(), boom)
	assert.True(t, d.Dirty())
	assert.ErrorIs(t, d.SetPixel(1, 1, Green), boom)
	assert.True(t, d.Dirty())
}

func TestNewValidates(t *testing.T) {
	emu := NewEmulator(panel)

	_, err := New(emu.Pins(), Geometry{Width: 0, Height: 64}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(emu.Pins(), Geometry{Width: 64, Height: 63}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(emu.Pins(), Geometry{Width: 64, Height: 128}, zerolog.Nop())
	assert.Error(t, err, "64 rows per half are not addressable with five lines")

	pins := emu.Pins()
	pins.Addr[3] = nil
	_, err = New(pins, panel, zerolog.Nop())
	assert.Error(t, err)
}
