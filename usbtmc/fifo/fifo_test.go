package fifo_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/softtmc/instrument"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/usbtmc"
	"github.com/ardnew/softtmc/usbtmc/fifo"
)

func pair(t *testing.T) (*fifo.Device, *fifo.Host) {
	t.Helper()
	bus := t.TempDir()
	dev, err := fifo.Listen(bus)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	host, err := fifo.Dial(ctx, bus)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { host.Close() })
	return dev, host
}

func TestListen(t *testing.T) {
	bus := t.TempDir()
	dev, err := fifo.Listen(bus)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if len(dev.UUID()) != 32 {
		t.Errorf("UUID() = %q, want 32 hex digits", dev.UUID())
	}
	if want := filepath.Join(bus, "device-"+dev.UUID()); dev.Dir() != want {
		t.Errorf("Dir() = %q, want %q", dev.Dir(), want)
	}

	dirs, err := fifo.Devices(bus)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(dirs) != 1 || dirs[0] != dev.Dir() {
		t.Errorf("Devices() = %v, want [%s]", dirs, dev.Dir())
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	dirs, _ = fifo.Devices(bus)
	if len(dirs) != 0 {
		t.Errorf("Devices() after Close = %v, want none", dirs)
	}
}

func TestTransfers(t *testing.T) {
	dev, host := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("*IDN?")},
		{"binary", []byte{0x02, 0x00, 0x00, 0xff}},
		{"large", bytes.Repeat([]byte{0xA5}, 4000)},
	}
	buf := make([]byte, 4096)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := host.Write(ctx, tt.data); err != nil {
				t.Fatalf("host Write() error = %v", err)
			}
			n, err := dev.Read(ctx, buf)
			if err != nil {
				t.Fatalf("device Read() error = %v", err)
			}
			if !bytes.Equal(buf[:n], tt.data) {
				t.Errorf("device read %d bytes, want %d", n, len(tt.data))
			}

			if _, err := dev.Write(ctx, tt.data); err != nil {
				t.Fatalf("device Write() error = %v", err)
			}
			n, err = host.Read(ctx, buf)
			if err != nil {
				t.Fatalf("host Read() error = %v", err)
			}
			if !bytes.Equal(buf[:n], tt.data) {
				t.Errorf("host read %d bytes, want %d", n, len(tt.data))
			}
		})
	}
}

func TestOversized(t *testing.T) {
	dev, host := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := host.Write(ctx, make([]byte, fifo.MaxPacketSize+1)); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("Write(oversized) error = %v, want ErrBufferTooSmall", err)
	}

	// A frame larger than the read buffer is drained so the next one is
	// still readable.
	if _, err := host.Write(ctx, []byte("too long for buf")); err != nil {
		t.Fatal(err)
	}
	if _, err := host.Write(ctx, []byte("ok")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := dev.Read(ctx, buf); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("Read() error = %v, want ErrBufferTooSmall", err)
	}
	n, err := dev.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "ok" {
		t.Errorf("Read() = %q, %v, want \"ok\"", buf[:n], err)
	}
}

func TestReadCancel(t *testing.T) {
	dev, _ := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := dev.Read(ctx, make([]byte, 16)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read() error = %v, want deadline exceeded", err)
	}
}

func TestDeviceGone(t *testing.T) {
	dev, host := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	dev.Close()
	if _, err := host.Read(ctx, make([]byte, 16)); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("host Read() error = %v, want ErrNoDevice", err)
	}
	if _, err := dev.Read(ctx, make([]byte, 16)); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("device Read() after Close error = %v, want ErrClosed", err)
	}
}

func TestDialTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	if _, err := fifo.Dial(ctx, t.TempDir()); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("Dial() error = %v, want ErrNoDevice", err)
	}
}

func TestInstrument(t *testing.T) {
	dev, host := pair(t)

	opts := instrument.DefaultOptions()
	inst := instrument.NewUSB(opts, dev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inst.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	qctx, qcancel := context.WithTimeout(ctx, 2*time.Second)
	defer qcancel()
	c := usbtmc.NewClient(host, opts.Size)

	reply, err := c.Query(qctx, []byte("*IDN?"), 256)
	if err != nil {
		t.Fatalf("Query(*IDN?) error = %v", err)
	}
	if !strings.HasPrefix(string(reply), "SOFTTMC,PL-BRIDGE,") {
		t.Errorf("*IDN? = %q", reply)
	}

	reply, err = c.Query(qctx, []byte(":TEST:ECHO#3#fifo"), 256)
	if err != nil {
		t.Fatalf("Query(ECHO) error = %v", err)
	}
	if string(reply) != "fifo" {
		t.Errorf("ECHO = %q, want \"fifo\"", reply)
	}
}

func TestControl(t *testing.T) {
	dev, host := pair(t)

	inst := instrument.NewUSB(instrument.DefaultOptions(), dev)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inst.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	qctx, qcancel := context.WithTimeout(ctx, 2*time.Second)
	defer qcancel()
	c := usbtmc.NewClient(host, 256)

	caps, err := c.Capabilities(qctx)
	if err != nil {
		t.Fatalf("Capabilities() error = %v", err)
	}
	if caps != usbtmc.DefaultCapabilities() {
		t.Errorf("Capabilities() = %+v, want %+v", caps, usbtmc.DefaultCapabilities())
	}

	if err := c.Clear(qctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	var buf [4]byte
	if _, err := host.Control(qctx, usbtmc.RequestInitiateAbortBulkIn, buf[:]); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Control(abort) error = %v, want ErrNotSupported", err)
	}

	// Bulk traffic still flows after control requests.
	reply, err := c.Query(qctx, []byte(":TEST:ECHO#2#ok"), 16)
	if err != nil || string(reply) != "ok" {
		t.Errorf("Query(ECHO) = %q, %v, want \"ok\"", reply, err)
	}
}

func TestControlNoHandler(t *testing.T) {
	dev, host := pair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go dev.Read(ctx, make([]byte, 64))

	var buf [usbtmc.CapabilitiesSize]byte
	if _, err := host.Control(ctx, usbtmc.RequestGetCapabilities, buf[:]); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("Control() error = %v, want ErrNotSupported", err)
	}
}
