package pins

import (
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

// OpenPeriph initialises the periph.io host drivers and resolves every line
// through gpioreg. Outputs start low; busy is an input with pull-up.
func OpenPeriph(n Names, logger zerolog.Logger) (*Set, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("host.Init() = %w", err)
	}
	logger.Debug().Int("drivers", len(state.Loaded)).Msg("periph host initialised")

	lines := map[string]matrix.Line{}
	for _, o := range n.outputs() {
		p := gpioreg.ByName(o.name)
		if p == nil {
			return nil, fmt.Errorf("pins: invalid %s pin %q", o.role, o.name)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("pins: %s.Out(%v) = %w", o.role, gpio.Low, err)
		}
		lines[o.role] = p
	}
	set := assemble(lines)

	if n.Busy != "" {
		busy := gpioreg.ByName(n.Busy)
		if busy == nil {
			return nil, fmt.Errorf("pins: invalid busy pin %q", n.Busy)
		}
		if err := busy.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("pins: busy.In(%v, %v) = %w", gpio.PullUp, gpio.NoEdge, err)
		}
		set.Busy = busy
	}
	return set, nil
}
