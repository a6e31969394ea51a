package hal

import "errors"

// PLStatus is the operating state of the programmable-logic peripheral.
type PLStatus uint8

// PL status values. The numeric value is reported to the host as an ASCII
// digit, so the order is part of the command protocol.
const (
	PLInactive PLStatus = iota // PL held in reset; MCU owns the flash bus
	PLActive                   // PL running; flash bus may be driven by PL
)

// String returns a human-readable status name.
func (s PLStatus) String() string {
	switch s {
	case PLInactive:
		return "inactive"
	case PLActive:
		return "active"
	default:
		return "unknown"
	}
}

// Digit returns the ASCII digit reported by the PL:ACTIVE? query.
func (s PLStatus) Digit() byte {
	return '0' + byte(s)
}

// PullStatus is the state of a bulk pull transaction.
type PullStatus uint8

// Pull status values.
const (
	PullIdle  PullStatus = iota // No pull started
	PullBusy                    // Transfer in progress
	PullReady                   // Destination filled
	PullError                   // Transfer failed
)

// String returns a human-readable pull status name.
func (s PullStatus) String() string {
	switch s {
	case PullIdle:
		return "idle"
	case PullBusy:
		return "busy"
	case PullReady:
		return "ready"
	case PullError:
		return "error"
	default:
		return "unknown"
	}
}

// PullAlign is the destination alignment required by the pull engine.
const PullAlign = 4

// SPI NOR flash opcodes.
const (
	FlashCmdReadID       = 0x9F // Read JEDEC ID
	FlashCmdReadStatus   = 0x05 // Read status register
	FlashCmdWriteEnable  = 0x06 // Write enable
	FlashCmdWriteDisable = 0x04 // Write disable
	FlashCmdRead         = 0x03 // Read data
	FlashCmdFastRead     = 0x0B // Fast read (with dummy byte)
	FlashCmdPageProgram  = 0x02 // Page program
	FlashCmdSectorErase  = 0x20 // Sector erase (4KB)
	FlashCmdBlockErase   = 0xD8 // Block erase (64KB)
	FlashCmdChipErase    = 0xC7 // Chip erase
	FlashCmdChipErase2   = 0x60 // Chip erase (alternate opcode)
)

// SPI NOR status register bits.
const (
	FlashStatusBusy = 0x01 // Write in progress
	FlashStatusWEL  = 0x02 // Write enable latch
)

// Hardware errors.
var (
	// ErrMisaligned indicates a pull destination that is not PullAlign aligned.
	ErrMisaligned = errors.New("pull destination misaligned")

	// ErrPLInactive indicates a PL transfer attempted while PL is inactive.
	ErrPLInactive = errors.New("PL inactive")

	// ErrPullBusy indicates a pull started while another is in progress.
	ErrPullBusy = errors.New("pull in progress")

	// ErrTxFailed indicates the PL rejected or failed a command transfer.
	ErrTxFailed = errors.New("PL transfer failed")
)

// PL is the programmable-logic peripheral as seen by the command engine.
//
// Status and Enable may be called from the transport goroutine. Tx,
// StartPull, PullStatus and StopPull are only called from the engine's
// processing loop.
type PL interface {
	// Status returns the current operating state.
	Status() PLStatus

	// Enable starts (true) or stops (false) the PL.
	Enable(on bool)

	// Tx transmits buf to the PL. The transfer is full duplex: buf may be
	// overwritten in place with the PL's response.
	Tx(buf []byte) error

	// StartPull arms a bulk transfer from the PL into dst. dst must start on
	// a PullAlign boundary.
	StartPull(dst []byte) error

	// PullStatus reports progress of the armed pull. Each call is one poll.
	PullStatus() PullStatus

	// StopPull aborts the armed pull, if any.
	StopPull()
}

// Flash is the PL configuration flash reached over SPI when PL is inactive.
type Flash interface {
	// Transceive clocks buf out on MOSI and replaces it with the bytes read
	// on MISO.
	Transceive(buf []byte) error

	// Wait polls the status register until the busy bit clears or bound
	// polls have elapsed, and returns the last status byte read.
	Wait(bound uint32) uint8
}
