//go:build linux

package pins

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

const consumer = "ptycho"

type cdevOut struct{ l *gpiocdev.Line }

func (c cdevOut) Out(v gpio.Level) error {
	if v {
		return c.l.SetValue(1)
	}
	return c.l.SetValue(0)
}

func (c cdevOut) String() string { return fmt.Sprintf("gpiocdev/%d", c.l.Offset()) }

type cdevIn struct {
	l   *gpiocdev.Line
	log zerolog.Logger
}

// Read reports Low when the line cannot be read, so a broken busy line does
// not stall triggering.
func (c cdevIn) Read() gpio.Level {
	v, err := c.l.Value()
	if err != nil {
		c.log.Warn().Err(err).Msg("busy line read")
		return gpio.Low
	}
	return gpio.Level(v != 0)
}

// OpenGPIOCdev requests every line from the character device chip (for
// example "gpiochip0"). Names are line offsets.
func OpenGPIOCdev(chip string, n Names, logger zerolog.Logger) (*Set, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	var closers []func() error
	fail := func(err error) (*Set, error) {
		for _, c := range closers {
			_ = c()
		}
		return nil, err
	}

	lines := map[string]matrix.Line{}
	for _, o := range n.outputs() {
		off, err := strconv.Atoi(o.name)
		if err != nil {
			return fail(fmt.Errorf("pins: %s offset %q: %w", o.role, o.name, err))
		}
		l, err := gpiocdev.RequestLine(chip, off, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			return fail(fmt.Errorf("pins: request %s line %d on %s: %w", o.role, off, chip, err))
		}
		closers = append(closers, l.Close)
		lines[o.role] = cdevOut{l: l}
	}
	set := assemble(lines)

	if n.Busy != "" {
		off, err := strconv.Atoi(n.Busy)
		if err != nil {
			return fail(fmt.Errorf("pins: busy offset %q: %w", n.Busy, err))
		}
		l, err := gpiocdev.RequestLine(chip, off, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithConsumer(consumer))
		if err != nil {
			return fail(fmt.Errorf("pins: request busy line %d on %s: %w", off, chip, err))
		}
		closers = append(closers, l.Close)
		set.Busy = cdevIn{l: l, log: logger}
	}
	set.closers = closers
	logger.Debug().Str("chip", chip).Int("lines", len(closers)).Msg("gpio character device lines requested")
	return set, nil
}
