package usbtmc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softtmc/pkg"
)

// Handler receives decoded messages from a Transport. Both methods are
// called from the transport goroutine and must not block.
type Handler interface {
	// Receive handles a complete DEV_DEP_MSG_OUT message.
	Receive(data []byte)

	// RequestResponse handles REQUEST_DEV_DEP_MSG_IN. The handler answers
	// later through Transport.Reply with the same tag.
	RequestResponse(tag uint8, maxLen int)
}

// Transport is the device side of a USBTMC bulk interface. It decodes
// Bulk-OUT transfers into Handler calls and frames replies staged in TxData.
type Transport struct {
	pipe    Pipe
	handler Handler
	caps    Capabilities

	// Buffers (zero-allocation pattern)
	rxBuf  []byte // one Bulk-OUT transfer
	txBuf  []byte // Bulk-IN header, reply data and padding
	msgBuf []byte // command message assembled across transfers
	size   int    // reply data capacity

	ctx        context.Context
	msgMutex   sync.Mutex // guards msgBuf
	writeMutex sync.Mutex // serializes Bulk-IN transfers
	mutex      sync.RWMutex
}

// NewTransport creates a device transport with size bytes of reply data
// capacity. The same limit applies to command messages. If pipe is a
// ControlPipe, the transport answers its control requests.
func NewTransport(pipe Pipe, size int) *Transport {
	if size <= 0 {
		size = DefaultMaxPacket
	}
	t := &Transport{
		pipe:   pipe,
		caps:   DefaultCapabilities(),
		rxBuf:  make([]byte, Align4(HeaderSize+size)),
		txBuf:  make([]byte, Align4(HeaderSize+size)),
		msgBuf: make([]byte, 0, size),
		size:   size,
		ctx:    context.Background(),
	}
	if cp, ok := pipe.(ControlPipe); ok {
		cp.SetControlHandler(t.HandleControl)
	}
	return t
}

// SetHandler sets the message handler.
func (t *Transport) SetHandler(h Handler) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handler = h
}

// TxData returns the reply data buffer. Replies are staged here before
// calling Reply.
func (t *Transport) TxData() []byte {
	return t.txBuf[HeaderSize : HeaderSize+t.size]
}

// Reply sends the first n bytes of TxData as the response to tag.
func (t *Transport) Reply(n int, tag uint8) {
	if n > t.size {
		n = t.size
	}

	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	hdr := BulkInHeader{Tag: tag, TransferSize: uint32(n), EOM: true}
	hdr.MarshalTo(t.txBuf)
	total := Align4(HeaderSize + n)
	clear(t.txBuf[HeaderSize+n : total])

	t.mutex.RLock()
	ctx := t.ctx
	t.mutex.RUnlock()

	if _, err := t.pipe.Write(ctx, t.txBuf[:total]); err != nil {
		pkg.LogWarn(pkg.ComponentTransport, "reply failed", "tag", tag, "error", err)
		return
	}
	pkg.LogDebug(pkg.ComponentTransport, "reply sent", "tag", tag, "len", n)
}

// HandleControl answers a USBTMC class-specific control request, writing
// the response into buf. Returns the number of bytes written.
func (t *Transport) HandleControl(request uint8, buf []byte) (int, error) {
	switch request {
	case RequestGetCapabilities:
		n := t.caps.MarshalTo(buf)
		if n == 0 {
			return 0, pkg.ErrBufferTooSmall
		}
		return n, nil

	case RequestIndicatorPulse:
		if len(buf) < 1 {
			return 0, pkg.ErrBufferTooSmall
		}
		pkg.LogInfo(pkg.ComponentTransport, "indicator pulse")
		buf[0] = StatusSuccess
		return 1, nil

	case RequestInitiateClear:
		if len(buf) < 1 {
			return 0, pkg.ErrBufferTooSmall
		}
		t.msgMutex.Lock()
		t.msgBuf = t.msgBuf[:0]
		t.msgMutex.Unlock()
		buf[0] = StatusSuccess
		return 1, nil

	case RequestCheckClearStatus:
		if len(buf) < 2 {
			return 0, pkg.ErrBufferTooSmall
		}
		buf[0] = StatusSuccess
		buf[1] = 0
		return 2, nil

	default:
		return 0, fmt.Errorf("control request %d: %w", request, pkg.ErrNotSupported)
	}
}

// Run is the main processing loop. It reads Bulk-OUT transfers and
// dispatches them to the handler until ctx is cancelled or the pipe fails.
func (t *Transport) Run(ctx context.Context) error {
	t.mutex.Lock()
	t.ctx = ctx
	t.mutex.Unlock()

	for {
		n, err := t.pipe.Read(ctx, t.rxBuf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, pkg.ErrBufferTooSmall) {
				pkg.LogWarn(pkg.ComponentTransport, "transfer dropped", "error", err)
				continue
			}
			return fmt.Errorf("bulk out: %w", err)
		}
		if err := t.handleTransfer(t.rxBuf[:n]); err != nil {
			pkg.LogWarn(pkg.ComponentTransport, "transfer ignored", "error", err)
		}
	}
}

// handleTransfer decodes one Bulk-OUT transfer.
func (t *Transport) handleTransfer(data []byte) error {
	var hdr BulkOutHeader
	if !ParseBulkOutHeader(data, &hdr) {
		return fmt.Errorf("invalid bulk out header (%d bytes): %w", len(data), pkg.ErrProtocol)
	}

	t.mutex.RLock()
	h := t.handler
	t.mutex.RUnlock()
	if h == nil {
		return pkg.ErrNotConfigured
	}

	switch hdr.MsgID {
	case MsgDevDepMsgOut:
		payload := data[HeaderSize:]
		if int(hdr.TransferSize) < len(payload) {
			payload = payload[:hdr.TransferSize]
		}
		t.msgMutex.Lock()
		defer t.msgMutex.Unlock()
		if len(t.msgBuf)+len(payload) > t.size {
			t.msgBuf = t.msgBuf[:0]
			return fmt.Errorf("message exceeds %d bytes: %w", t.size, pkg.ErrBufferTooSmall)
		}
		t.msgBuf = append(t.msgBuf, payload...)
		if !hdr.EOM() {
			return nil
		}
		pkg.LogDebug(pkg.ComponentTransport, "message received", "tag", hdr.Tag, "len", len(t.msgBuf))
		h.Receive(t.msgBuf)
		t.msgBuf = t.msgBuf[:0]
		return nil

	case MsgRequestDevDepMsgIn:
		maxLen := int(hdr.TransferSize)
		if maxLen > t.size || maxLen < 0 {
			maxLen = t.size
		}
		h.RequestResponse(hdr.Tag, maxLen)
		return nil

	default:
		return fmt.Errorf("MsgID %d: %w", hdr.MsgID, pkg.ErrNotSupported)
	}
}
