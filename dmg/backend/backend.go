// Package backend defines the interface host platforms implement to drive
// an emulator: render a frame and report joypad input back.
package backend

import (
	"github.com/kestrelemu/godmg/dmg/memory"
	"github.com/kestrelemu/godmg/dmg/video"
)

// InputEvent reports a single joypad key transition, or a request to quit.
type InputEvent struct {
	Key     memory.JoypadKey
	Pressed bool
	Quit    bool
}

// Backend renders frames to a specific output (terminal, SDL window,
// nothing at all) and turns platform input into InputEvents.
type Backend interface {
	// Init configures the backend. Required before the first Update.
	Init(config Config) error

	// Update renders frame and returns any input events collected since
	// the last call.
	Update(frame *video.FrameBuffer) ([]InputEvent, error)

	// Cleanup releases backend resources on shutdown.
	Cleanup() error
}

// Config holds the configuration shared across backends.
type Config struct {
	Title string
	Scale int
}
