//go:build sdl2

// Package sdl2 renders the Game Boy framebuffer into an SDL2 window via a
// texture-per-frame blit, and maps keyboard input to joypad presses.
// Building it requires the SDL2 development libraries; without the sdl2
// build tag, stub.go provides a Backend that reports unavailability instead.
package sdl2

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/kestrelemu/godmg/dmg/backend"
	"github.com/kestrelemu/godmg/dmg/memory"
	"github.com/kestrelemu/godmg/dmg/video"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	pixelScale    = 4
	windowWidth   = video.FramebufferWidth * pixelScale
	windowHeight  = video.FramebufferHeight * pixelScale
	bytesPerPixel = 4
)

// Backend implements backend.Backend using SDL2 bindings.
type Backend struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	running  bool
	config   backend.Config

	pixelBuffer []byte
	eventBuffer []backend.InputEvent
}

// New creates a new SDL2 backend.
func New() *Backend {
	return &Backend{}
}

func (s *Backend) Init(config backend.Config) error {
	s.config = config

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("initializing SDL2: %w", err)
	}

	title := config.Title
	if title == "" {
		title = "godmg"
	}

	window, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		windowWidth,
		windowHeight,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("creating window: %w", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("creating renderer: %w", err)
	}
	s.renderer = renderer

	texture, err := renderer.CreateTexture(
		sdl.PIXELFORMAT_RGBA8888,
		sdl.TEXTUREACCESS_STREAMING,
		video.FramebufferWidth,
		video.FramebufferHeight,
	)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("creating texture: %w", err)
	}
	s.texture = texture

	s.pixelBuffer = make([]byte, video.FramebufferWidth*video.FramebufferHeight*bytesPerPixel)
	s.eventBuffer = make([]backend.InputEvent, 0, 10)
	s.running = true

	slog.Info("SDL2 backend initialized")

	return nil
}

func (s *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	s.eventBuffer = s.eventBuffer[:0]

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		s.eventBuffer = append(s.eventBuffer, s.handleEvent(event)...)
	}

	if !s.running {
		return s.eventBuffer, nil
	}

	s.renderFrame(frame)

	return s.eventBuffer, nil
}

func (s *Backend) Cleanup() error {
	slog.Info("cleaning up SDL2 backend")

	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()

	return nil
}

var keyMapping = map[sdl.Keycode]memory.JoypadKey{
	sdl.K_RETURN: memory.JoypadStart,
	sdl.K_RSHIFT: memory.JoypadSelect,
	sdl.K_a:      memory.JoypadA,
	sdl.K_s:      memory.JoypadB,
	sdl.K_UP:     memory.JoypadUp,
	sdl.K_DOWN:   memory.JoypadDown,
	sdl.K_LEFT:   memory.JoypadLeft,
	sdl.K_RIGHT:  memory.JoypadRight,
}

func (s *Backend) handleEvent(evt sdl.Event) []backend.InputEvent {
	switch e := evt.(type) {
	case *sdl.QuitEvent:
		s.running = false
		return []backend.InputEvent{{Quit: true}}

	case *sdl.KeyboardEvent:
		if key, ok := keyMapping[e.Keysym.Sym]; ok {
			return []backend.InputEvent{{Key: key, Pressed: e.Type == sdl.KEYDOWN}}
		}
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			s.running = false
			return []backend.InputEvent{{Quit: true}}
		}
	}

	return nil
}

func (s *Backend) renderFrame(frame *video.FrameBuffer) {
	frameData := frame.ToSlice()

	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			srcIdx := y*video.FramebufferWidth + x
			dstIdx := srcIdx * bytesPerPixel

			gbPixel := frameData[srcIdx]
			r, g, b, a := gbColorToRGBA(gbPixel)

			s.pixelBuffer[dstIdx] = a
			s.pixelBuffer[dstIdx+1] = b
			s.pixelBuffer[dstIdx+2] = g
			s.pixelBuffer[dstIdx+3] = r
		}
	}

	s.texture.Update(nil, unsafe.Pointer(&s.pixelBuffer[0]), video.FramebufferWidth*bytesPerPixel)

	s.renderer.SetDrawColor(0, 0, 0, 0xFF)
	s.renderer.Clear()
	s.renderer.Copy(s.texture, nil, nil)
	s.renderer.Present()
}

func gbColorToRGBA(gbColor uint32) (r, g, b, a uint8) {
	c := video.GBColor(gbColor)
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}
