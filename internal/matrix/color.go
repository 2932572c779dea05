package matrix

import "image/color"

// Color is a 3-bit mask: one bit per LED die.
type Color uint8

const (
	Off   Color = 0
	Red   Color = 1
	Green Color = 2
	Blue  Color = 4
	White Color = Red | Green | Blue

	// MaxColor is the largest valid mask.
	MaxColor = White
)

// Valid reports whether c fits the 3-bit mask.
func (c Color) Valid() bool { return c <= MaxColor }

func (c Color) R() bool { return c&Red != 0 }
func (c Color) G() bool { return c&Green != 0 }
func (c Color) B() bool { return c&Blue != 0 }

// NRGBA is the full-brightness rendition of c, used by previews.
func (c Color) NRGBA() color.NRGBA {
	var v color.NRGBA
	v.A = 255
	if c.R() {
		v.R = 255
	}
	if c.G() {
		v.G = 255
	}
	if c.B() {
		v.B = 255
	}
	return v
}
