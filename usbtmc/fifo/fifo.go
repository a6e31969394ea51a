package fifo

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/usbtmc"
)

// MaxPacketSize is the largest transfer a frame can carry.
const MaxPacketSize = 0xFFFF

// Frame types.
const (
	msgControl = 0x01 // [request, wLength lo, hi] out, [result, data...] back
	msgData    = 0x02
)

// Control frame results.
const (
	ctrlOK    = 0x00
	ctrlStall = 0x01
)

// headerSize is type (1) + length (2).
const headerSize = 3

// FIFO file names.
const (
	fifoBulkOut = "bulk_out"
	fifoBulkIn  = "bulk_in"
)

const (
	devicePrefix = "device-"
	pollInterval = 50 * time.Millisecond
	readTimeout  = 100 * time.Millisecond
)

// endpoint is one direction of a FIFO pair.
type endpoint struct {
	f       *os.File
	closeCh <-chan struct{}
	header  [headerSize]byte
	scratch [512]byte
}

// readFull reads exactly len(buf) bytes, retrying on read deadlines so ctx
// and close are honored.
func (ep *endpoint) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ep.closeCh:
			return pkg.ErrClosed
		default:
		}

		ep.f.SetReadDeadline(time.Now().Add(readTimeout))
		n, err := ep.f.Read(buf[total:])
		total += n
		switch {
		case err == nil:
		case os.IsTimeout(err):
		case errors.Is(err, io.EOF):
			return fmt.Errorf("peer closed: %w", pkg.ErrNoDevice)
		default:
			return err
		}
	}
	return nil
}

// readFrame reads one frame into buf and returns its type. A frame larger
// than buf is discarded and reported as pkg.ErrBufferTooSmall.
func (ep *endpoint) readFrame(ctx context.Context, buf []byte) (uint8, int, error) {
	if err := ep.readFull(ctx, ep.header[:]); err != nil {
		return 0, 0, err
	}
	msgType := ep.header[0]
	length := int(binary.LittleEndian.Uint16(ep.header[1:3]))

	if msgType != msgData && msgType != msgControl {
		return 0, 0, fmt.Errorf("frame type %#02x: %w", msgType, pkg.ErrProtocol)
	}
	if length > len(buf) {
		for remain := length; remain > 0; {
			chunk := min(remain, len(ep.scratch))
			if err := ep.readFull(ctx, ep.scratch[:chunk]); err != nil {
				return 0, 0, err
			}
			remain -= chunk
		}
		return msgType, 0, fmt.Errorf("%d byte frame: %w", length, pkg.ErrBufferTooSmall)
	}
	if err := ep.readFull(ctx, buf[:length]); err != nil {
		return 0, 0, err
	}
	return msgType, length, nil
}

// writeFrame writes data as one frame of type msgType.
func (ep *endpoint) writeFrame(ctx context.Context, msgType uint8, data []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-ep.closeCh:
		return 0, pkg.ErrClosed
	default:
	}
	if len(data) > MaxPacketSize {
		return 0, fmt.Errorf("%d byte transfer: %w", len(data), pkg.ErrBufferTooSmall)
	}

	frame := make([]byte, headerSize+len(data))
	frame[0] = msgType
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(data)))
	copy(frame[headerSize:], data)

	if deadline, ok := ctx.Deadline(); ok {
		ep.f.SetWriteDeadline(deadline)
	} else {
		ep.f.SetWriteDeadline(time.Time{})
	}
	if _, err := ep.f.Write(frame); err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return 0, fmt.Errorf("peer closed: %w", pkg.ErrNoDevice)
		}
		return 0, err
	}
	return len(data), nil
}

// conn holds the two endpoints of one side of a FIFO pair.
type conn struct {
	dir string
	in  *endpoint // read side
	out *endpoint // write side

	readMutex  sync.Mutex
	writeMutex sync.Mutex
	closeCh    chan struct{}
	closeOnce  sync.Once
}

func newConn(dir string, in, out *os.File) *conn {
	c := &conn{dir: dir, closeCh: make(chan struct{})}
	c.in = &endpoint{f: in, closeCh: c.closeCh}
	c.out = &endpoint{f: out, closeCh: c.closeCh}
	return c
}

// Write implements usbtmc.Pipe.
func (c *conn) Write(ctx context.Context, data []byte) (int, error) {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.out.writeFrame(ctx, msgData, data)
}

// Dir returns the device directory.
func (c *conn) Dir() string {
	return c.dir
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.in.f.Close()
		c.out.f.Close()
	})
}

// Device is the instrument side of a FIFO pair.
type Device struct {
	*conn
	uuid string

	handler      usbtmc.ControlHandler
	handlerMutex sync.RWMutex
}

// generateUUID returns a random version 4 UUID in hex.
func generateUUID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return hex.EncodeToString(uuid[:]), nil
}

// Listen creates a device directory under busDir and opens its FIFOs.
func Listen(busDir string) (*Device, error) {
	uuid, err := generateUUID()
	if err != nil {
		return nil, fmt.Errorf("generate uuid: %w", err)
	}
	dir := filepath.Join(busDir, devicePrefix+uuid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create device dir: %w", err)
	}

	cleanup := func(files ...*os.File) {
		for _, f := range files {
			if f != nil {
				f.Close()
			}
		}
		os.RemoveAll(dir)
	}

	for _, name := range []string{fifoBulkOut, fifoBulkIn} {
		if err := syscall.Mkfifo(filepath.Join(dir, name), 0o666); err != nil {
			cleanup()
			return nil, fmt.Errorf("mkfifo %s: %w", name, err)
		}
	}

	// O_RDWR keeps both FIFOs open without waiting for the host.
	in, err := openFIFO(dir, fifoBulkOut, os.O_RDWR)
	if err != nil {
		cleanup()
		return nil, err
	}
	out, err := openFIFO(dir, fifoBulkIn, os.O_RDWR)
	if err != nil {
		cleanup(in)
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentTransport, "fifo device listening", "dir", dir)
	return &Device{conn: newConn(dir, in, out), uuid: uuid}, nil
}

// UUID returns the device's unique identifier.
func (d *Device) UUID() string {
	return d.uuid
}

// SetControlHandler implements usbtmc.ControlPipe.
func (d *Device) SetControlHandler(h usbtmc.ControlHandler) {
	d.handlerMutex.Lock()
	defer d.handlerMutex.Unlock()
	d.handler = h
}

// Read implements usbtmc.Pipe. Control frames arriving between transfers
// are answered here and never returned.
func (d *Device) Read(ctx context.Context, buf []byte) (int, error) {
	d.readMutex.Lock()
	defer d.readMutex.Unlock()

	for {
		msgType, n, err := d.in.readFrame(ctx, buf)
		if err != nil {
			if msgType == msgControl {
				pkg.LogWarn(pkg.ComponentTransport, "control frame dropped", "error", err)
				continue
			}
			return 0, err
		}
		if msgType == msgData {
			return n, nil
		}
		if err := d.control(ctx, buf[:n]); err != nil {
			return 0, err
		}
	}
}

// control answers one control frame.
func (d *Device) control(ctx context.Context, req []byte) error {
	resp := []byte{ctrlStall}
	if len(req) >= 3 {
		length := min(int(binary.LittleEndian.Uint16(req[1:3])), MaxPacketSize-1)

		d.handlerMutex.RLock()
		h := d.handler
		d.handlerMutex.RUnlock()

		if h != nil {
			data := make([]byte, 1+length)
			n, err := h(req[0], data[1:])
			if err != nil {
				pkg.LogDebug(pkg.ComponentTransport, "control request stalled", "request", req[0], "error", err)
			} else {
				data[0] = ctrlOK
				resp = data[:1+n]
			}
		}
	}

	d.writeMutex.Lock()
	defer d.writeMutex.Unlock()
	_, err := d.out.writeFrame(ctx, msgControl, resp)
	return err
}

// Close detaches the device and removes its directory.
func (d *Device) Close() error {
	d.close()
	pkg.LogInfo(pkg.ComponentTransport, "fifo device closed", "dir", d.dir)
	return os.RemoveAll(d.dir)
}

// Host is the host side of a FIFO pair.
type Host struct {
	*conn
}

// Devices returns the device directories under busDir, sorted by name.
func Devices(busDir string) ([]string, error) {
	entries, err := os.ReadDir(busDir)
	if err != nil {
		return nil, fmt.Errorf("read bus dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), devicePrefix) {
			continue
		}
		dir := filepath.Join(busDir, e.Name())
		if _, err := os.Stat(filepath.Join(dir, fifoBulkIn)); err != nil {
			continue
		}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Dial waits for a device to appear under busDir and opens the first one.
func Dial(ctx context.Context, busDir string) (*Host, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if dirs, err := Devices(busDir); err == nil && len(dirs) > 0 {
			return Open(dirs[0])
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no device in %s: %w", busDir, pkg.ErrNoDevice)
		case <-ticker.C:
		}
	}
}

// Open opens the FIFOs of the device in dir.
func Open(dir string) (*Host, error) {
	in, err := openFIFO(dir, fifoBulkIn, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	out, err := openFIFO(dir, fifoBulkOut, os.O_WRONLY)
	if err != nil {
		in.Close()
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentTransport, "fifo host opened", "dir", dir)
	return &Host{conn: newConn(dir, in, out)}, nil
}

// Read implements usbtmc.Pipe.
func (h *Host) Read(ctx context.Context, buf []byte) (int, error) {
	h.readMutex.Lock()
	defer h.readMutex.Unlock()

	msgType, n, err := h.in.readFrame(ctx, buf)
	if err != nil {
		return 0, err
	}
	if msgType != msgData {
		return 0, fmt.Errorf("unexpected control frame: %w", pkg.ErrProtocol)
	}
	return n, nil
}

// Control implements usbtmc.Controller. The device answers with at most
// len(buf) bytes. A request the device does not handle fails with
// pkg.ErrNotSupported.
func (h *Host) Control(ctx context.Context, request uint8, buf []byte) (int, error) {
	if len(buf) > MaxPacketSize-1 {
		return 0, fmt.Errorf("%d byte control transfer: %w", len(buf), pkg.ErrBufferTooSmall)
	}
	req := []byte{request, 0, 0}
	binary.LittleEndian.PutUint16(req[1:3], uint16(len(buf)))

	h.writeMutex.Lock()
	_, err := h.out.writeFrame(ctx, msgControl, req)
	h.writeMutex.Unlock()
	if err != nil {
		return 0, err
	}

	h.readMutex.Lock()
	defer h.readMutex.Unlock()

	resp := make([]byte, 1+len(buf))
	msgType, n, err := h.in.readFrame(ctx, resp)
	switch {
	case err != nil:
		return 0, err
	case msgType != msgControl || n < 1:
		return 0, fmt.Errorf("control request %d: bad response: %w", request, pkg.ErrProtocol)
	case resp[0] != ctrlOK:
		return 0, fmt.Errorf("control request %d stalled: %w", request, pkg.ErrNotSupported)
	}
	return copy(buf, resp[1:n]), nil
}

// Close closes the host's FIFOs. The device directory is left in place.
func (h *Host) Close() error {
	h.close()
	return nil
}

func openFIFO(dir, name string, flag int) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), flag|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Compile-time interface checks
var (
	_ usbtmc.Pipe        = (*Device)(nil)
	_ usbtmc.ControlPipe = (*Device)(nil)
	_ usbtmc.Pipe        = (*Host)(nil)
	_ usbtmc.Controller  = (*Host)(nil)
)
