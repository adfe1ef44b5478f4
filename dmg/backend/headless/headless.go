// Package headless runs the emulator with no display attached, for scripted
// runs and automated tests: it counts frames, optionally dumps periodic PNG
// snapshots, and signals quit once the configured frame count is reached.
package headless

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kestrelemu/godmg/dmg/backend"
	"github.com/kestrelemu/godmg/dmg/video"
)

// Backend implements backend.Backend for automated testing and batch processing.
type Backend struct {
	config         backend.Config
	frameCount     int
	maxFrames      int
	snapshotConfig SnapshotConfig
}

// SnapshotConfig holds configuration for periodic frame snapshots.
type SnapshotConfig struct {
	Enabled   bool
	Interval  int    // Save a snapshot every N frames.
	Directory string // Directory to save snapshots in.
	ROMName   string // ROM name, used as the snapshot filename prefix.
}

func New(maxFrames int, snapshotConfig SnapshotConfig) *Backend {
	return &Backend{
		maxFrames:      maxFrames,
		snapshotConfig: snapshotConfig,
	}
}

func (h *Backend) Init(config backend.Config) error {
	h.config = config

	slog.Info("running headless mode",
		"frames", h.maxFrames,
		"snapshot_interval", h.snapshotConfig.Interval,
		"snapshot_dir", h.snapshotConfig.Directory)

	return nil
}

// Update advances the frame counter and handles snapshots, returning a quit
// event once maxFrames has been reached.
func (h *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	h.frameCount++

	if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval == 0 {
		h.saveSnapshot(frame)
	}

	if h.frameCount%10 == 0 {
		slog.Info("frame progress", "completed", h.frameCount, "total", h.maxFrames)
	}

	if h.frameCount >= h.maxFrames {
		if h.snapshotConfig.Enabled && h.frameCount%h.snapshotConfig.Interval != 0 {
			h.saveSnapshot(frame)
		}
		slog.Info("headless execution completed", "frames", h.maxFrames)
		return []backend.InputEvent{{Quit: true}}, nil
	}

	return nil, nil
}

func (h *Backend) Cleanup() error {
	return nil
}

// CreateSnapshotConfig builds a SnapshotConfig from CLI parameters, creating
// the snapshot directory (or a temp one, if directory is empty) as needed.
func CreateSnapshotConfig(interval int, directory, romPath string) (SnapshotConfig, error) {
	config := SnapshotConfig{
		Enabled:  interval > 0,
		Interval: interval,
	}

	if !config.Enabled {
		return config, nil
	}

	if directory == "" {
		tempDir, err := os.MkdirTemp("", "godmg-snapshots-*")
		if err != nil {
			return config, fmt.Errorf("creating snapshot directory: %w", err)
		}
		config.Directory = tempDir
	} else {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return config, fmt.Errorf("creating snapshot directory: %w", err)
		}
		config.Directory = directory
	}

	config.ROMName = strings.TrimSuffix(filepath.Base(romPath), filepath.Ext(romPath))

	return config, nil
}

func (h *Backend) saveSnapshot(frame *video.FrameBuffer) {
	name := fmt.Sprintf("%s_frame_%d.png", h.snapshotConfig.ROMName, h.frameCount)
	path := filepath.Join(h.snapshotConfig.Directory, name)

	if err := savePNG(frame, path); err != nil {
		slog.Error("failed to save PNG snapshot", "frame", h.frameCount, "error", err)
	}
}

func savePNG(fb *video.FrameBuffer, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight))

	data := fb.ToSlice()
	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			pixel := data[y*video.FramebufferWidth+x]
			img.Set(x, y, color.RGBA{
				R: byte(pixel >> 24),
				G: byte(pixel >> 16),
				B: byte(pixel >> 8),
				A: byte(pixel),
			})
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
