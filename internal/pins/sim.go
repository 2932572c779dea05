package pins

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

// OpenSim returns lines bound to a virtual panel and fake camera lines. The
// busy line reads Low, so ready waits finish at once.
func OpenSim(geo matrix.Geometry) *Set {
	emu := matrix.NewEmulator(geo)
	return &Set{
		Matrix:   emu.Pins(),
		Trigger:  &gpiotest.Pin{N: "sim/trigger", Num: 0, L: gpio.Low},
		Busy:     &gpiotest.Pin{N: "sim/busy", Num: 1, L: gpio.Low},
		Emulator: emu,
	}
}
