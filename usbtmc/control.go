package usbtmc

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/softtmc/pkg"
)

// Controller issues class-specific control requests on the default control
// endpoint. buf sizes the data stage; the response is written into it.
type Controller interface {
	Control(ctx context.Context, request uint8, buf []byte) (int, error)
}

// ControlHandler answers control requests on the device side.
// Transport.HandleControl is one.
type ControlHandler func(request uint8, buf []byte) (int, error)

// ControlPipe is a device-side pipe that also carries control requests.
// NewTransport registers itself as the handler.
type ControlPipe interface {
	SetControlHandler(h ControlHandler)
}

// clearPoll is the CHECK_CLEAR_STATUS retry interval.
const clearPoll = 10 * time.Millisecond

func (c *Client) controller() (Controller, error) {
	ctrl, ok := c.pipe.(Controller)
	if !ok {
		return nil, fmt.Errorf("pipe has no control endpoint: %w", pkg.ErrNotSupported)
	}
	return ctrl, nil
}

// Capabilities issues GET_CAPABILITIES.
func (c *Client) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	ctrl, err := c.controller()
	if err != nil {
		return caps, err
	}

	buf := make([]byte, CapabilitiesSize)
	n, err := ctrl.Control(ctx, RequestGetCapabilities, buf)
	if err != nil {
		return caps, fmt.Errorf("GET_CAPABILITIES: %w", err)
	}
	if !ParseCapabilities(buf[:n], &caps) {
		return caps, fmt.Errorf("GET_CAPABILITIES returned %d bytes: %w", n, pkg.ErrProtocol)
	}
	if caps.Status != StatusSuccess {
		return caps, fmt.Errorf("GET_CAPABILITIES status %#02x: %w", caps.Status, pkg.ErrProtocol)
	}
	return caps, nil
}

// Clear issues INITIATE_CLEAR and polls CHECK_CLEAR_STATUS until the device
// reports the clear finished. A partially received command is discarded.
func (c *Client) Clear(ctx context.Context) error {
	ctrl, err := c.controller()
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	var status [2]byte
	if _, err := ctrl.Control(ctx, RequestInitiateClear, status[:1]); err != nil {
		return fmt.Errorf("INITIATE_CLEAR: %w", err)
	}
	if status[0] != StatusSuccess {
		return fmt.Errorf("INITIATE_CLEAR status %#02x: %w", status[0], pkg.ErrProtocol)
	}

	for {
		if _, err := ctrl.Control(ctx, RequestCheckClearStatus, status[:]); err != nil {
			return fmt.Errorf("CHECK_CLEAR_STATUS: %w", err)
		}
		switch status[0] {
		case StatusSuccess:
			pkg.LogDebug(pkg.ComponentTransport, "clear complete")
			return nil
		case StatusPending:
		default:
			return fmt.Errorf("CHECK_CLEAR_STATUS status %#02x: %w", status[0], pkg.ErrProtocol)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(clearPoll):
		}
	}
}
