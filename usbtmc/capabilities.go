package usbtmc

import "encoding/binary"

// CapabilitiesSize is the GET_CAPABILITIES response size.
const CapabilitiesSize = 0x18

// Interface capability bits.
const (
	CapListenOnly     = 0x01
	CapTalkOnly       = 0x02
	CapIndicatorPulse = 0x04
)

// Device capability bits.
const (
	CapTermChar = 0x01
)

// Capabilities is the GET_CAPABILITIES response.
type Capabilities struct {
	Status    uint8  // USBTMC_status
	BCDUSBTMC uint16 // Specification release
	Interface uint8  // Cap* interface bits
	Device    uint8  // Cap* device bits
}

// DefaultCapabilities returns the capabilities of the instrument: it talks
// and listens, supports INDICATOR_PULSE, and ignores TermChar.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Status:    StatusSuccess,
		BCDUSBTMC: BCDUSBTMC,
		Interface: CapIndicatorPulse,
	}
}

// MarshalTo writes the response to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (c *Capabilities) MarshalTo(buf []byte) int {
	if len(buf) < CapabilitiesSize {
		return 0
	}
	clear(buf[:CapabilitiesSize])

	buf[0] = c.Status
	binary.LittleEndian.PutUint16(buf[2:4], c.BCDUSBTMC)
	buf[4] = c.Interface
	buf[5] = c.Device

	return CapabilitiesSize
}

// ParseCapabilities parses a GET_CAPABILITIES response.
// Returns false if data is too short.
func ParseCapabilities(data []byte, out *Capabilities) bool {
	if len(data) < CapabilitiesSize {
		return false
	}

	out.Status = data[0]
	out.BCDUSBTMC = binary.LittleEndian.Uint16(data[2:4])
	out.Interface = data[4]
	out.Device = data[5]
	return true
}
