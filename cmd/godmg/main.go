package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/kestrelemu/godmg/dmg"
	"github.com/kestrelemu/godmg/dmg/backend"
	"github.com/kestrelemu/godmg/dmg/backend/headless"
	"github.com/kestrelemu/godmg/dmg/backend/sdl2"
	"github.com/kestrelemu/godmg/dmg/backend/terminal"
	"github.com/kestrelemu/godmg/dmg/timing"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "godmg"
	app.Description = "A simple Game Boy emulator"
	app.Usage = "godmg [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "boot-rom",
			Usage: "Path to a boot ROM image to run before the cartridge (optional)",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Display backend to use: terminal, sdl2, or headless",
			Value: "terminal",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "Save frame snapshots every N frames in headless mode (0 = disabled)",
			Value: 0,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "Directory to save frame snapshots (default: temp directory)",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	emu, err := dmg.NewWithFiles(romPath, c.String("boot-rom"))
	if err != nil {
		return err
	}

	var b backend.Backend
	var limiter timing.Limiter = timing.NewAdaptiveLimiter()

	switch c.String("backend") {
	case "headless":
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless backend requires --frames with a positive value")
		}
		snapshotConfig, err := headless.CreateSnapshotConfig(c.Int("snapshot-interval"), c.String("snapshot-dir"), romPath)
		if err != nil {
			return err
		}
		b = headless.New(frames, snapshotConfig)
		limiter = timing.NewNoOpLimiter()
	case "sdl2":
		b = sdl2.New()
	case "terminal", "":
		b = terminal.New()
	default:
		return errors.New("unknown backend: " + c.String("backend"))
	}

	return runLoop(emu, b, limiter, romPath)
}

func runLoop(emu *dmg.Emulator, b backend.Backend, limiter timing.Limiter, romPath string) error {
	if err := b.Init(backend.Config{Title: "godmg - " + romPath}); err != nil {
		return err
	}
	defer b.Cleanup()

	for {
		if err := emu.RunFrame(); err != nil {
			return err
		}

		events, err := b.Update(emu.Framebuffer())
		if err != nil {
			return err
		}

		quit := false
		for _, ev := range events {
			if ev.Quit {
				quit = true
				continue
			}
			applyInput(emu, ev)
		}
		if quit {
			return nil
		}

		limiter.WaitForNextFrame()
	}
}

func applyInput(emu *dmg.Emulator, ev backend.InputEvent) {
	if ev.Pressed {
		emu.PressKey(ev.Key)
	} else {
		emu.ReleaseKey(ev.Key)
	}
}
