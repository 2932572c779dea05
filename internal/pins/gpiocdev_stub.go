//go:build !linux

package pins

import (
	"fmt"

	"github.com/rs/zerolog"
)

func OpenGPIOCdev(chip string, n Names, logger zerolog.Logger) (*Set, error) {
	return nil, fmt.Errorf("gpiocdev backend not supported on this platform")
}
