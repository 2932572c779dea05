package sequence

import (
	"image"

	"github.com/coreman2200/funtimes-ptycho/internal/matrix"
)

// Program is one illumination run: each point is lit alone for one camera
// frame, in order, for Cycles passes.
type Program struct {
	Points []image.Point
	Color  matrix.Color
	// Cycles <= 0 repeats until stopped.
	Cycles int
	// Trigger fires the camera once per frame.
	Trigger bool
}

// PlayerState enumerates sequencer states.
type PlayerState string

const (
	Idle    PlayerState = "idle"
	Running PlayerState = "running"
	Paused  PlayerState = "paused"
	Done    PlayerState = "done"
)

// Frame identifies one step of a run.
type Frame struct {
	Cycle int         `json:"cycle"`
	Index int         `json:"index"`
	Total int         `json:"total"`
	Point image.Point `json:"point"`
}

// Hooks are dependency-injected callbacks into the panel and camera.
type Hooks struct {
	// Light shows exactly one LED.
	Light func(p image.Point, c matrix.Color) error
	// Expose fires the camera for the lit frame and reports success.
	Expose func(f Frame) bool
	// Blank turns the panel off between frames.
	Blank func() error
	// OnFrame runs after every frame with the exposure result.
	OnFrame func(f Frame, exposed bool)
	// OnDone runs once when the last cycle completes.
	OnDone func(cycles int)
}
