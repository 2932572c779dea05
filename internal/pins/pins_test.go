package pins

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

func TestDefaultNamesValidate(t *testing.T) {
	assert.NoError(t, DefaultNames().Validate())
}

func TestValidateRejectsMissingAndShared(t *testing.T) {
	n := DefaultNames()
	n.Addr[2] = ""
	assert.Contains(t, errString(n.Validate()), "a2 not assigned")

	n = DefaultNames()
	n.G1 = n.Clock
	assert.Contains(t, errString(n.Validate()), "share")

	n = DefaultNames()
	n.Busy = n.Trigger
	assert.Contains(t, errString(n.Validate()), "busy shares")
}

func TestSimDrivesEmulator(t *testing.T) {
	geo := matrix.Geometry{Width: 64, Height: 64}
	set, err := Open(BackendSim, Names{}, "", geo, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, set.Emulator)
	defer set.Close()

	d, err := matrix.New(set.Matrix, geo, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, d.Begin())
	require.NoError(t, d.SetPixel(10, 40, matrix.Blue))
	assert.Equal(t, []matrix.Pixel{{X: 10, Y: 40, C: matrix.Blue}}, set.Emulator.Lit())

	require.NoError(t, set.Trigger.Out(gpio.High))
	assert.Equal(t, gpio.Low, set.Busy.Read())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("spidev", DefaultNames(), "", matrix.Geometry{}, zerolog.Nop())
	assert.Error(t, err)

	n := DefaultNames()
	n.Latch = ""
	_, err = Open(BackendPeriph, n, "", matrix.Geometry{}, zerolog.Nop())
	assert.Contains(t, errString(err), "latch")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
