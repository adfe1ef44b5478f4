package memory

import "fmt"

const titleLength = 16

const (
	entryPointAddress     = 0x100
	titleAddress          = 0x134
	cartridgeTypeAddress  = 0x147
	romSizeAddress        = 0x148
	ramSizeAddress        = 0x149
	headerChecksumAddress = 0x14D
)

// mapperKind identifies which MBC implementation a cartridge header selects.
type mapperKind uint8

const (
	mapperRomOnly mapperKind = iota
	mapperMBC1
	mapperUnsupported
)

// ramBankCounts maps the header's RAM size byte to a bank count of 8KB banks.
var ramBankCounts = map[byte]uint8{
	0x00: 0,
	0x01: 1, // unofficial, 2KB, treated as a single partial bank
	0x02: 1,
	0x03: 4,
	0x04: 16,
	0x05: 8,
}

// UnsupportedMapperError is returned when a cartridge header names a mapper
// this module does not implement. The caller may still run the cartridge
// with a RomOnly fallback, or refuse to load it.
type UnsupportedMapperError struct {
	MapperByte byte
}

func (e UnsupportedMapperError) Error() string {
	return fmt.Sprintf("memory: unsupported cartridge mapper byte 0x%02X", e.MapperByte)
}

// Cartridge holds raw ROM bytes together with header fields parsed out of them.
type Cartridge struct {
	data           []byte
	title          string
	cartType       byte
	romSize        byte
	ramSize        byte
	ramBankCount   uint8
	headerChecksum byte
	mapper         mapperKind
}

// NewCartridge creates an empty cartridge with no ROM loaded, equivalent to
// turning on a Game Boy without a cartridge inserted.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:   make([]byte, 0x8000),
		mapper: mapperRomOnly,
	}
}

// NewCartridgeWithData parses a ROM image's header and returns a Cartridge.
// An image too short to hold the mapper byte at 0x0147 is rejected with an
// error. If the header names a mapper this module does not implement, the
// returned error is an UnsupportedMapperError and the cartridge falls back
// to RomOnly semantics (the image mapped directly at 0x0000-0x7FFF, no
// banking) so the caller can choose whether to proceed.
func NewCartridgeWithData(data []byte) (*Cartridge, error) {
	if len(data) <= cartridgeTypeAddress {
		return nil, fmt.Errorf("memory: cartridge image too short: %d bytes", len(data))
	}

	cart := &Cartridge{
		data: make([]byte, len(data)),
	}
	copy(cart.data, data)

	if len(data) > titleAddress+titleLength {
		cart.title = cleanGameboyTitle(data[titleAddress : titleAddress+titleLength])
	}
	if len(data) > cartridgeTypeAddress {
		cart.cartType = data[cartridgeTypeAddress]
	}
	if len(data) > romSizeAddress {
		cart.romSize = data[romSizeAddress]
	}
	if len(data) > ramSizeAddress {
		cart.ramSize = data[ramSizeAddress]
	}
	if len(data) > headerChecksumAddress {
		cart.headerChecksum = data[headerChecksumAddress]
	}
	cart.ramBankCount = ramBankCounts[cart.ramSize]

	var err error
	cart.mapper, err = classifyMapper(cart.cartType)
	return cart, err
}

// classifyMapper maps the header's cartridge-type byte onto the mappers this
// module implements. Anything else is reported as unsupported.
func classifyMapper(cartType byte) (mapperKind, error) {
	switch cartType {
	case 0x00:
		return mapperRomOnly, nil
	case 0x01, 0x02, 0x03:
		return mapperMBC1, nil
	default:
		return mapperUnsupported, UnsupportedMapperError{MapperByte: cartType}
	}
}

func (c *Cartridge) hasBattery() bool {
	return c.cartType == 0x03
}

// Title returns the cleaned, human-readable game title from the header.
func (c *Cartridge) Title() string {
	return c.title
}

// ReadByte reads a byte directly from the raw ROM image, bypassing banking.
// Used only for header inspection; bank-aware access goes through the MBC.
func (c *Cartridge) ReadByte(addr uint16) uint8 {
	if int(addr) >= len(c.data) {
		return 0xFF
	}
	return c.data[addr]
}
