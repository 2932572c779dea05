package selftest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

func panel(t *testing.T) (*matrix.Driver, *matrix.Emulator) {
	geo := matrix.Geometry{Width: 16, Height: 16}
	emu := matrix.NewEmulator(geo)
	d, err := matrix.New(emu.Pins(), geo, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Begin())
	return d, emu
}

func TestPlans(t *testing.T) {
	tests := []struct {
		kind  Kind
		steps int
		first matrix.Pixel
	}{
		{IndexSweep, 256, matrix.Pixel{X: 0, Y: 0, C: matrix.White}},
		{RGBTest, 4, matrix.Pixel{X: 8, Y: 8, C: matrix.Red}},
		{RowSweep, 16, matrix.Pixel{X: 0, Y: 0, C: matrix.Green}},
		{Corners, 4, matrix.Pixel{X: 0, Y: 0, C: matrix.Red}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			d, emu := panel(t)
			r := NewRunner(Plan{Kind: tt.kind})
			require.True(t, r.Step(d))
			assert.Equal(t, []matrix.Pixel{tt.first}, emu.Lit())
			n := 1
			for r.Step(d) {
				require.Len(t, emu.Lit(), 1)
				n++
			}
			assert.Equal(t, tt.steps, n)
			assert.Empty(t, r.Errors())
			assert.Nil(t, emu.Lit(), "blank when done")
		})
	}
}

func TestRowSweepVisitsEveryRow(t *testing.T) {
	d, emu := panel(t)
	r := NewRunner(Plan{Kind: RowSweep})
	rows := map[int]bool{}
	for r.Step(d) {
		if lit := emu.Lit(); len(lit) == 1 {
			rows[lit[0].Y] = true
		}
	}
	assert.Len(t, rows, 16)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("corners")
	require.NoError(t, err)
	assert.Equal(t, Corners, k)
	_, err = ParseKind("plane_z")
	assert.Error(t, err)

	d, _ := panel(t)
	assert.False(t, NewRunner(Plan{}).Step(d))
}
