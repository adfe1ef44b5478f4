// Package terminal renders the Game Boy framebuffer as a grid of colored
// terminal cells using tcell, and maps keyboard input to joypad presses.
package terminal

import (
	"fmt"
	"log/slog"

	"github.com/gdamore/tcell/v2"
	"github.com/kestrelemu/godmg/dmg/backend"
	"github.com/kestrelemu/godmg/dmg/backend/terminal/render"
	"github.com/kestrelemu/godmg/dmg/memory"
	"github.com/kestrelemu/godmg/dmg/video"
)

const (
	width  = video.FramebufferWidth
	height = video.FramebufferHeight

	minTermWidth  = width + 2
	minTermHeight = height/2 + 2
)

// Backend implements backend.Backend using tcell for terminal rendering.
type Backend struct {
	screen  tcell.Screen
	running bool
	config  backend.Config
}

// New creates a new terminal backend.
func New() *Backend {
	return &Backend{}
}

func (t *Backend) Init(config backend.Config) error {
	t.config = config

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}

	t.screen = screen
	t.running = true

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	slog.Info("terminal backend initialized")

	return nil
}

// Update polls keyboard events, translates them to joypad InputEvents, and
// renders frame as a grid of half-block characters.
func (t *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	var events []backend.InputEvent

	for t.screen.HasPendingEvent() {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			events = append(events, t.translateKey(ev)...)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}

	if !t.running {
		return events, nil
	}

	t.render(frame)
	t.screen.Show()

	return events, nil
}

func (t *Backend) Cleanup() error {
	if t.screen != nil {
		slog.Info("cleaning up terminal backend")
		t.screen.Fini()
	}
	return nil
}

var keyMapping = map[tcell.Key]memory.JoypadKey{
	tcell.KeyUp:    memory.JoypadUp,
	tcell.KeyDown:  memory.JoypadDown,
	tcell.KeyLeft:  memory.JoypadLeft,
	tcell.KeyRight: memory.JoypadRight,
	tcell.KeyEnter: memory.JoypadStart,
}

var runeMapping = map[rune]memory.JoypadKey{
	'z': memory.JoypadA,
	'x': memory.JoypadB,
	' ': memory.JoypadStart,
	'\t': memory.JoypadSelect,
}

func (t *Backend) translateKey(ev *tcell.EventKey) []backend.InputEvent {
	if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape {
		t.running = false
		return []backend.InputEvent{{Quit: true}}
	}

	if key, ok := keyMapping[ev.Key()]; ok {
		return []backend.InputEvent{{Key: key, Pressed: true}}
	}

	if ev.Key() == tcell.KeyRune {
		if key, ok := runeMapping[ev.Rune()]; ok {
			return []backend.InputEvent{{Key: key, Pressed: true}}
		}
	}

	return nil
}

func (t *Backend) render(frame *video.FrameBuffer) {
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()
	t.drawGameBoy(frame)
}

func (t *Backend) drawGameBoy(frame *video.FrameBuffer) {
	frameData := frame.ToSlice()
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			topPixel := frameData[y*width+x]
			bottomPixel := uint32(video.WhiteColor)
			if y+1 < height {
				bottomPixel = frameData[(y+1)*width+x]
			}

			topShade := render.PixelToShade(topPixel)
			bottomShade := render.PixelToShade(bottomPixel)

			char, fg, bg := getHalfBlockChar(topShade, bottomShade)

			style := tcell.StyleDefault.Foreground(fg).Background(bg)
			t.screen.SetContent(x+1, y/2+1, char, nil, style)
		}
	}
}

func getHalfBlockChar(topShade, bottomShade int) (rune, tcell.Color, tcell.Color) {
	shadeColors := []tcell.Color{
		tcell.NewRGBColor(0x0F, 0x38, 0x0F),
		tcell.NewRGBColor(0x30, 0x62, 0x30),
		tcell.NewRGBColor(0x8B, 0xAC, 0x0F),
		tcell.NewRGBColor(0x9B, 0xBC, 0x0F),
	}

	topColor := shadeColors[topShade]
	bottomColor := shadeColors[bottomShade]
	char := render.GetHalfBlockChar(topShade, bottomShade)

	if topShade == bottomShade {
		return char, topColor, tcell.ColorDefault
	}
	return char, topColor, bottomColor
}
