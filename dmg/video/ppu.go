package video

import (
	"fmt"
	"log/slog"

	"github.com/kestrelemu/godmg/dmg/addr"
	"github.com/kestrelemu/godmg/dmg/bit"
	"github.com/kestrelemu/godmg/dmg/memory"
)

// PPUMode represents the PPU's current rendering stage.
// These values match the STAT register bits 1-0.
type PPUMode int

const (
	// hblankMode (Mode 0): Horizontal blank period, CPU can access VRAM/OAM
	hblankMode PPUMode = 0
	// vblankMode (Mode 1): Vertical blank period, CPU can access VRAM/OAM
	vblankMode PPUMode = 1
	// oamReadMode (Mode 2): PPU is reading OAM, CPU cannot access OAM
	oamReadMode PPUMode = 2
	// vramReadMode (Mode 3): PPU is reading VRAM, CPU cannot access VRAM/OAM
	vramReadMode PPUMode = 3
)

const (
	hblankCycles       = 204
	oamScanlineCycles  = 80
	vramScanlineCycles = 172
	scanlineCycles     = oamScanlineCycles + vramScanlineCycles + hblankCycles
)

// PPU drives the Game Boy's picture generation: a per-scanline mode state
// machine (OAM scan -> pixel transfer -> hblank, then ten lines of vblank)
// that renders background, window and sprites into a FrameBuffer once per
// line and fires VBlank/LCDSTAT interrupts at the documented transitions.
type PPU struct {
	bus            *memory.Bus
	framebuffer    *FrameBuffer
	bgPixelBuffer  []byte // stores background/window pixel colors for sprite priority
	spritePriority SpritePriorityBuffer

	mode                 PPUMode // current PPU mode (matches STAT bits 1-0)
	line                 int     // current scanline (LY register, 0-153)
	cycles               int     // cycle counter for current mode
	modeCounterAux       int     // auxiliary counter for VBlank timing
	vBlankLine           int     // which VBlank line we're on (0-9)
	pixelCounter         int     // pixel counter within scanline
	tileCycleCounter     int     // cycle counter for tile fetching
	isScanLineTransfered bool    // whether current scanline has been rendered
	windowLine           int     // internal window line counter (0-143)
}

// NewPPU returns a PPU wired to bus, starting in VBlank at line 144 as the
// real hardware does immediately after boot.
func NewPPU(bus *memory.Bus) *PPU {
	fb := NewFrameBuffer()
	p := &PPU{
		framebuffer:   fb,
		bus:           bus,
		mode:          vblankMode,
		bgPixelBuffer: make([]byte, FramebufferSize),
		line:          144,
	}

	lcdc := bus.Read(addr.LCDC)
	bgp := bus.Read(addr.BGP)
	slog.Debug("PPU initialized", "LCDC", fmt.Sprintf("0x%02X", lcdc), "LCD_enabled", (lcdc&0x80) != 0, "BGP", fmt.Sprintf("0x%02X", bgp))

	return p
}

func (p *PPU) FrameBuffer() *FrameBuffer {
	return p.framebuffer
}

func (p *PPU) Line() int { return p.line }

// Mode reports the PPU's current mode, encoded as STAT bits 1-0, so the bus
// can gate VRAM/OAM access the way the LCD controller gates it on hardware.
func (p *PPU) Mode() byte { return byte(p.mode) }

// Tick advances the PPU's mode state machine by the given number of clock
// cycles, rendering a scanline's worth of pixels when the machine enters
// pixel-transfer mode and requesting interrupts at the documented
// mode/line transitions.
func (p *PPU) Tick(cycles int) {
	p.cycles += cycles

	switch p.mode {
	case hblankMode:
		if p.cycles < hblankCycles {
			break
		}
		p.cycles -= hblankCycles
		p.setMode(oamReadMode)
		p.setLY(p.line + 1)

		if p.line == 144 {
			p.setMode(vblankMode)
			p.vBlankLine = 0
			p.modeCounterAux = p.cycles
			p.windowLine = 0

			p.bus.RequestInterrupt(addr.VBlankInterrupt)

			if p.bus.ReadBit(statVblankIrq, addr.STAT) {
				p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
			}
		} else if p.bus.ReadBit(statOamIrq, addr.STAT) {
			p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	case vblankMode:
		p.modeCounterAux += cycles

		if p.modeCounterAux >= scanlineCycles {
			p.modeCounterAux -= scanlineCycles
			p.vBlankLine++

			if p.vBlankLine <= 9 {
				p.setLY(p.line + 1)
			}
		}

		if p.cycles >= 4104 && p.modeCounterAux >= 4 && p.line == 153 {
			p.setLY(0)
		}

		if p.cycles >= 4560 {
			p.cycles -= 4560
			p.setMode(oamReadMode)
			if p.bus.ReadBit(statOamIrq, addr.STAT) {
				p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
			}
		}
	case oamReadMode:
		if p.cycles >= oamScanlineCycles {
			p.cycles -= oamScanlineCycles
			p.setMode(vramReadMode)
			p.isScanLineTransfered = false
		}
	case vramReadMode:
		if !p.isScanLineTransfered {
			if p.readLCDCVariable(lcdDisplayEnable) == 1 {
				p.drawScanline()
			}
			p.isScanLineTransfered = true
		}

		if p.cycles >= vramScanlineCycles {
			p.pixelCounter = 0
			p.cycles -= vramScanlineCycles
			p.tileCycleCounter = 0
			p.setMode(hblankMode)

			if p.bus.ReadBit(statHblankIrq, addr.STAT) {
				p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
			}
		}
	}

	if p.cycles >= 70224 {
		p.cycles -= 70224
	}
}

func (p *PPU) drawScanline() {
	lcdEnabled := p.readLCDCVariable(lcdDisplayEnable) == 1

	if !lcdEnabled {
		lineWidth := p.line * FramebufferWidth
		for i := 0; i < FramebufferWidth; i++ {
			p.framebuffer.buffer[lineWidth+i] = uint32(WhiteColor)
		}
		return
	}

	p.drawBackground()
	p.drawWindow()
	p.drawSprites()
}

func (p *PPU) drawBackground() {
	lineWidth := p.line * FramebufferWidth
	backgroundEnabled := p.readLCDCVariable(bgDisplay) == 1

	if !backgroundEnabled {
		palette := p.bus.Read(addr.BGP)
		color0 := palette & 0x03
		displayColor := uint32(ByteToColor(color0))

		for i := range FramebufferWidth {
			p.framebuffer.buffer[lineWidth+i] = displayColor
			p.bgPixelBuffer[lineWidth+i] = 0
		}
		return
	}

	useSignedTileSet := p.readLCDCVariable(bgWindowTileDataSelect) == 0
	useTileMapZero := p.readLCDCVariable(bgTileMapDisplaySelect) == 0

	tilesAddr := addr.TileData0
	if useSignedTileSet {
		tilesAddr = addr.TileData2
	}

	tileMapAddr := addr.TileMap1
	if useTileMapZero {
		tileMapAddr = addr.TileMap0
	}

	scrollX := p.bus.Read(addr.SCX)
	scrollY := p.bus.Read(addr.SCY)
	lineScrolled := (p.line + int(scrollY)) & 0xFF
	lineScrolled32 := (lineScrolled / 8) * 32
	tilePixelY := lineScrolled % 8
	tilePixelY2 := tilePixelY * 2

	for screenPixelX := 0; screenPixelX < FramebufferWidth; screenPixelX++ {
		mapPixelX := (screenPixelX + int(scrollX)) & 0xFF
		mapTileX := mapPixelX / 8
		mapTileXOffset := mapPixelX % 8
		mapTileAddr := tileMapAddr + uint16(lineScrolled32+mapTileX)

		mapTileValue := p.bus.ReadInternal(mapTileAddr)

		var tileAddr uint16
		if useSignedTileSet {
			signedTile := int8(mapTileValue)
			tileOffset := int(signedTile) * 16
			tileAddr = uint16(int(tilesAddr) + tileOffset + int(tilePixelY2))
		} else {
			mapTile := int(mapTileValue)
			mapTile16 := mapTile * 16
			tileAddr = tilesAddr + uint16(mapTile16) + uint16(tilePixelY2)
		}

		low := p.bus.ReadInternal(tileAddr)
		high := p.bus.ReadInternal(tileAddr + 1)

		pixelIndex := uint8(7 - mapTileXOffset)
		pixel := 0
		if bit.IsSet(pixelIndex, low) {
			pixel |= 1
		}
		if bit.IsSet(pixelIndex, high) {
			pixel |= 2
		}

		pixelPosition := lineWidth + screenPixelX

		palette := p.bus.Read(addr.BGP)
		color := (palette >> (pixel * 2)) & 0x03
		finalColor := uint32(ByteToColor(color))

		p.framebuffer.buffer[pixelPosition] = finalColor
		p.bgPixelBuffer[pixelPosition] = color
	}
}

func (p *PPU) drawWindow() {
	if p.windowLine > 143 {
		return
	}

	windowEnabled := p.readLCDCVariable(windowDisplayEnable) == 1
	if !windowEnabled {
		return
	}

	wx := p.bus.Read(addr.WX) - 7
	wy := p.bus.Read(addr.WY)

	if wx > 159 {
		return
	}

	if wy > 143 || int(wy) > p.line {
		return
	}

	useSignedTileSet := p.readLCDCVariable(bgWindowTileDataSelect) == 0
	useTileMapZero := p.readLCDCVariable(windowTileMapSelect) == 0

	tilesAddr := addr.TileData0
	if useSignedTileSet {
		tilesAddr = addr.TileData2
	}

	tileMapAddr := addr.TileMap1
	if useTileMapZero {
		tileMapAddr = addr.TileMap0
	}

	lineAdj := p.windowLine

	y32 := (lineAdj / 8) * 32
	pixelY := lineAdj & 7
	pixelY2 := pixelY * 2
	lineWidth := p.line * FramebufferWidth

	endTileX := (FramebufferWidth - int(wx) + 7) / 8
	if endTileX > 32 {
		endTileX = 32
	}

	for x := 0; x < endTileX; x++ {
		tileIndexAddr := tileMapAddr + uint16(y32+x)
		tileValue := p.bus.ReadInternal(tileIndexAddr)
		xOffset := x * 8

		var tileAddr uint16
		if useSignedTileSet {
			signedTile := int8(tileValue)
			tileOffset := int(signedTile) * 16
			tileAddr = uint16(int(tilesAddr) + tileOffset + int(pixelY2))
		} else {
			tile := int(tileValue)
			tile16 := tile * 16
			tileAddr = tilesAddr + uint16(tile16) + uint16(pixelY2)
		}

		low := p.bus.ReadInternal(tileAddr)
		high := p.bus.ReadInternal(tileAddr + 1)

		for pixelX := 0; pixelX < 8; pixelX++ {
			bufferX := xOffset + pixelX + int(wx)

			if bufferX < int(wx) || bufferX >= FramebufferWidth {
				continue
			}

			pixel := 0
			if bit.IsSet(uint8(7-pixelX), low) {
				pixel |= 1
			}
			if bit.IsSet(uint8(7-pixelX), high) {
				pixel |= 2
			}

			position := lineWidth + bufferX
			if position >= len(p.framebuffer.buffer) {
				continue
			}

			palette := p.bus.Read(addr.BGP)
			color := (palette >> (pixel * 2)) & 0x03
			p.framebuffer.buffer[position] = uint32(ByteToColor(color))
			p.bgPixelBuffer[position] = color
		}
	}
	p.windowLine++
}

func (p *PPU) drawSprites() {
	if p.readLCDCVariable(spriteDisplayEnable) != 1 {
		return
	}

	spriteHeight := 8
	if p.readLCDCVariable(spriteSize) == 1 {
		spriteHeight = 16
	}

	lineWidth := p.line * FramebufferWidth
	var spritesToDraw []int

	// OAM selection phase: scan sequentially 0xFE00-0xFE9F, comparing LY
	// against each sprite's Y. Only Y affects selection here; off-screen X
	// still counts toward the ten-sprite scanline limit.
	for sprite := 0; sprite < 40; sprite++ {
		oamAddr := addr.OAMStart + uint16(sprite*4)
		spriteY := int(p.bus.ReadInternal(oamAddr)) - 16

		if spriteY > p.line || (spriteY+spriteHeight) <= p.line {
			continue
		}
		spritesToDraw = append(spritesToDraw, sprite)

		if len(spritesToDraw) >= 10 {
			break
		}
	}

	p.spritePriority.Clear()

	for _, sprite := range spritesToDraw {
		oamAddr := addr.OAMStart + uint16(sprite*4)
		spriteX := int(p.bus.ReadInternal(oamAddr+1)) - 8

		for pixelOffset := range 8 {
			bufferX := spriteX + pixelOffset
			p.spritePriority.TryClaimPixel(bufferX, sprite, spriteX)
		}
	}

	for _, sprite := range spritesToDraw {
		oamAddr := addr.OAMStart + uint16(sprite*4)
		spriteY := int(p.bus.ReadInternal(oamAddr)) - 16
		spriteX := int(p.bus.ReadInternal(oamAddr+1)) - 8
		spriteTile := p.bus.ReadInternal(oamAddr + 2)
		spriteFlags := p.bus.ReadInternal(oamAddr + 3)

		hasPixels := false
		for x := 0; x < 8; x++ {
			if p.spritePriority.GetOwner(spriteX+x) == sprite {
				hasPixels = true
				break
			}
		}
		if !hasPixels {
			continue
		}

		spriteMask := 0xFF
		if spriteHeight == 16 {
			spriteMask = 0xFE
		}

		spriteTile16 := (int(spriteTile) & spriteMask) * 16
		objPaletteAddr := addr.OBP0
		if bit.IsSet(4, spriteFlags) {
			objPaletteAddr = addr.OBP1
		}

		flipX := bit.IsSet(5, spriteFlags)
		flipY := bit.IsSet(6, spriteFlags)
		aboveBG := !bit.IsSet(7, spriteFlags)

		pixelY := p.line - spriteY
		if flipY {
			pixelY = spriteHeight - 1 - pixelY
		}

		var pixelY2, offset int
		if spriteHeight == 16 && pixelY >= 8 {
			pixelY2 = (pixelY - 8) * 2
			offset = 16
		} else {
			pixelY2 = pixelY * 2
		}

		tileAddr := addr.TileData0 + uint16(spriteTile16+pixelY2+offset)
		low := p.bus.ReadInternal(tileAddr)
		high := p.bus.ReadInternal(tileAddr + 1)

		for pixelX := 0; pixelX < 8; pixelX++ {
			bufferX := spriteX + pixelX

			if p.spritePriority.GetOwner(bufferX) != sprite {
				continue
			}

			pixelIdx := 7 - pixelX
			if flipX {
				pixelIdx = pixelX
			}

			pixel := 0
			if bit.IsSet(uint8(pixelIdx), low) {
				pixel |= 1
			}
			if bit.IsSet(uint8(pixelIdx), high) {
				pixel |= 2
			}

			if pixel == 0 {
				continue
			}

			position := lineWidth + bufferX

			if !aboveBG {
				bgPixel := p.bgPixelBuffer[position]
				if bgPixel != 0 {
					continue
				}
			}

			palette := p.bus.Read(objPaletteAddr)
			color := (palette >> (pixel * 2)) & 0x03
			p.framebuffer.buffer[position] = uint32(ByteToColor(color))
		}
	}
}

// LCD Stat (Status) Register bit values
// Bit 6 - Interrupt based on LYC to LY comparison (based on bit 2)
// Bit 5 - Interrupt when Mode 10 (oamReadMode)
// Bit 4 - Interrupt when Mode 01 (vblankMode)
// Bit 3 - Interrupt when Mode 00 (hblankMode)
// Bit 2 - condition for triggering LYC/LY (0=LYC != LY, 1=LYC == LY)
// Bit 1,0 - current PPU mode
type statFlag uint8

const (
	statLycIrq       statFlag = 6
	statOamIrq                = 5
	statVblankIrq             = 4
	statHblankIrq             = 3
	statLycCondition          = 2
)

// LCDC (LCD Control) Register bit values
type lcdcFlag uint8

const (
	lcdDisplayEnable       lcdcFlag = 7
	windowTileMapSelect             = 6
	windowDisplayEnable             = 5
	bgWindowTileDataSelect          = 4
	bgTileMapDisplaySelect          = 3
	spriteSize                      = 2
	spriteDisplayEnable             = 1
	bgDisplay                       = 0
)

func (p *PPU) readLCDCVariable(flag lcdcFlag) byte {
	if bit.IsSet(uint8(flag), p.bus.Read(addr.LCDC)) {
		return 1
	}
	return 0
}

func (p *PPU) compareLYToLYC() {
	ly := p.bus.Read(addr.LY)
	lyc := p.bus.Read(addr.LYC)
	stat := p.bus.Read(addr.STAT)

	if ly == lyc {
		stat = bit.Set(statLycCondition, stat)
		if bit.IsSet(uint8(statLycIrq), stat) {
			p.bus.RequestInterrupt(addr.LCDSTATInterrupt)
		}
	} else {
		stat = bit.Reset(statLycCondition, stat)
	}

	p.bus.Write(addr.STAT, stat)
}

func (p *PPU) setMode(mode PPUMode) {
	p.mode = mode
	stat := p.bus.Read(addr.STAT)
	stat = stat&0xFC | byte(p.mode)
	p.bus.Write(addr.STAT, stat)
}

func (p *PPU) setLY(line int) {
	p.line = line
	p.bus.Write(addr.LY, byte(p.line))
	p.compareLYToLYC()
}
