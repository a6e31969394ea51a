package tmc

import "fmt"

// Identity is the instrument identification reported by *IDN?.
type Identity struct {
	Vendor  string
	Product string
	Version string

	// UID is the device-unique ID the serial number is derived from.
	UID [3]uint32
}

// DefaultIdentity returns the identity used when none is configured.
func DefaultIdentity() Identity {
	return Identity{
		Vendor:  "SOFTTMC",
		Product: "PL-BRIDGE",
		Version: "1.0",
	}
}

// Serial returns the 16 hex digit serial number derived from the UID.
func (id Identity) Serial() string {
	return fmt.Sprintf("%08X%08X", id.UID[0]+id.UID[2], id.UID[1])
}

// String returns the identification string "VENDOR,PRODUCT,SERIAL,VERSION".
func (id Identity) String() string {
	return id.Vendor + "," + id.Product + "," + id.Serial() + "," + id.Version
}

// Option configures an Engine.
type Option func(*Engine)

// WithIdentity sets the identification string source.
func WithIdentity(id Identity) Option {
	return func(e *Engine) {
		e.identity = id
	}
}
