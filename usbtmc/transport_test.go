package usbtmc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/softtmc/hal/sim"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/tmc"
)

var _ Handler = (*tmc.Engine)(nil)

// echoHandler replies to every request with the last message received.
type echoHandler struct {
	t        *Transport
	last     []byte
	messages [][]byte
	requests []int
	mutex    sync.Mutex
}

func (h *echoHandler) Receive(data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.last = append([]byte(nil), data...)
	h.messages = append(h.messages, h.last)
}

func (h *echoHandler) RequestResponse(tag uint8, maxLen int) {
	h.mutex.Lock()
	h.requests = append(h.requests, maxLen)
	n := copy(h.t.TxData(), h.last)
	h.mutex.Unlock()
	if n > maxLen {
		n = maxLen
	}
	h.t.Reply(n, tag)
}

func (h *echoHandler) received() [][]byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([][]byte(nil), h.messages...)
}

func startTransport(t *testing.T, size int) (*Transport, *echoHandler, *LoopPipe, context.Context) {
	t.Helper()
	host, dev := Loopback()
	tr := NewTransport(dev, size)
	h := &echoHandler{t: tr}
	tr.SetHandler(h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		host.Close()
	})
	return tr, h, host, ctx
}

func TestTransportQuery(t *testing.T) {
	_, h, host, ctx := startTransport(t, 64)
	c := NewClient(host, 64)

	got, err := c.Query(ctx, []byte("hello"), 0)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Query() = %q, want \"hello\"", got)
	}

	got, err = c.Query(ctx, []byte("truncate me"), 8)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if string(got) != "truncate" {
		t.Errorf("Query(max 8) = %q, want \"truncate\"", got)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.requests) != 2 || h.requests[0] != 64 || h.requests[1] != 8 {
		t.Errorf("requests = %v, want [64 8]", h.requests)
	}
}

func TestTransportMultiTransferMessage(t *testing.T) {
	_, h, host, ctx := startTransport(t, 64)

	send := func(tag uint8, data string, attr uint8) {
		pkt := make([]byte, Align4(HeaderSize+len(data)))
		hdr := BulkOutHeader{MsgID: MsgDevDepMsgOut, Tag: tag, TransferSize: uint32(len(data)), Attributes: attr}
		hdr.MarshalTo(pkt)
		copy(pkt[HeaderSize:], data)
		if _, err := host.Write(ctx, pkt); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	// Garbage and an unsupported MsgID are dropped.
	host.Write(ctx, []byte{0xFF, 0xFF})
	host.Write(ctx, []byte{MsgVendorSpecificOut, 1, 0xFE, 0, 0, 0, 0, 0, 1, 0, 0, 0})

	send(1, ":TEST:", 0)
	send(2, "ECHO#", 0)
	send(3, "1#x", AttrEOM)

	c := NewClient(host, 64)
	got, err := c.Read(ctx, 64)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != ":TEST:ECHO#1#x" {
		t.Errorf("Read() = %q, want assembled message", got)
	}
	if msgs := h.received(); len(msgs) != 1 {
		t.Errorf("messages = %q, want exactly one", msgs)
	}
}

func TestTransportOversizedMessage(t *testing.T) {
	_, h, host, ctx := startTransport(t, 8)
	c := NewClient(host, 8)

	if err := c.Write(ctx, []byte("0123456789")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := c.Query(ctx, []byte("ok"), 0); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	msgs := h.received()
	if len(msgs) != 1 || string(msgs[0]) != "ok" {
		t.Errorf("messages = %q, want [\"ok\"]", msgs)
	}
}

func TestTransportHandleControl(t *testing.T) {
	tr := NewTransport(nil, 64)
	buf := make([]byte, 64)

	tests := []struct {
		name    string
		request uint8
		wantN   int
		wantErr error
	}{
		{"capabilities", RequestGetCapabilities, CapabilitiesSize, nil},
		{"indicator pulse", RequestIndicatorPulse, 1, nil},
		{"initiate clear", RequestInitiateClear, 1, nil},
		{"check clear", RequestCheckClearStatus, 2, nil},
		{"abort unsupported", RequestInitiateAbortBulkIn, 0, pkg.ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tr.HandleControl(tt.request, buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleControl() error = %v, want %v", err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Errorf("HandleControl() = %d, want %d", n, tt.wantN)
			}
			if n > 0 && buf[0] != StatusSuccess {
				t.Errorf("status = %#02x, want success", buf[0])
			}
		})
	}

	if _, err := tr.HandleControl(RequestGetCapabilities, buf[:4]); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("HandleControl(short) error = %v, want ErrBufferTooSmall", err)
	}
}

func TestInstrument(t *testing.T) {
	const size = 256
	host, dev := Loopback()
	defer host.Close()

	tr := NewTransport(dev, size)
	pl := sim.NewPL(sim.PLConfig{PullPolls: 3})
	eng := tmc.New(tr.TxData(), tr, pl, sim.NewFlash(sim.FlashConfig{}),
		tmc.WithIdentity(tmc.Identity{Vendor: "ACME", Product: "T1", Version: "0.1", UID: [3]uint32{1, 2, 3}}))
	tr.SetHandler(eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go tr.Run(ctx)
	go eng.Run(ctx, time.Millisecond)

	c := NewClient(host, size)
	tests := []struct {
		cmd  string
		want []byte
	}{
		{"*IDN?", []byte("ACME,T1,0000000400000002,0.1")},
		{":PL:ACTIVE?", []byte("0")},
		{":TEST:ECHO#3#a\x00b", []byte("a\x00b")},
	}
	for _, tt := range tests {
		got, err := c.Query(ctx, []byte(tt.cmd), 0)
		if err != nil {
			t.Fatalf("Query(%q) error = %v", tt.cmd, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Query(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}

	// Nothing pending: empty response.
	got, err := c.Read(ctx, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read() = %q, want empty", got)
	}

	if err := c.Write(ctx, []byte(":PL:ACTIVE#1")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err = c.Query(ctx, []byte(":PL:PULL#2#go"), 0)
	if err != nil {
		t.Fatalf("Query(PULL) error = %v", err)
	}
	if len(got) < 10 || string(got[:2]) != "go" {
		t.Errorf("Query(PULL) = % x, want echo plus 8 pulled bytes", got)
	}

	stats := eng.Stats()
	if stats.EmptyReads != 1 {
		t.Errorf("EmptyReads = %d, want 1", stats.EmptyReads)
	}
	if stats.IgnoredWrites != 0 {
		t.Errorf("IgnoredWrites = %d, want 0", stats.IgnoredWrites)
	}
}
