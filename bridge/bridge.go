package bridge

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/softtmc/pkg"
)

// DefaultReplyTimeout bounds the wait for each reply.
const DefaultReplyTimeout = 5 * time.Second

// Mode selects how commands and replies are encoded on the line.
type Mode uint8

// Line modes.
const (
	ModeText Mode = iota // raw bytes, one message per line
	ModeHex              // hex-encoded bytes, one message per line
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeHex:
		return "hex"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return ModeText, nil
	case "hex":
		return ModeHex, nil
	default:
		return ModeText, fmt.Errorf("line mode %q: %w", name, pkg.ErrInvalidParameter)
	}
}

// Handler receives commands from the bridge.
type Handler interface {
	Receive(data []byte)
	RequestResponse(tag uint8, maxLen int)
}

// Bridge carries commands and replies over a line-oriented stream such as a
// serial port or stdio. Each input line is one command; the bridge then
// requests the reply and writes it as one output line before reading the
// next command.
type Bridge struct {
	rw      io.ReadWriter
	mode    Mode
	handler Handler
	timeout time.Duration

	txBuf   []byte
	tag     uint8
	replied chan uint8

	writeMutex sync.Mutex
	mutex      sync.RWMutex
}

// New creates a bridge over rw with size bytes of reply capacity.
func New(rw io.ReadWriter, size int, mode Mode) *Bridge {
	if size <= 0 {
		size = 4096
	}
	return &Bridge{
		rw:      rw,
		mode:    mode,
		timeout: DefaultReplyTimeout,
		txBuf:   make([]byte, size),
		replied: make(chan uint8, 1),
	}
}

// SetHandler sets the command handler.
func (b *Bridge) SetHandler(h Handler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.handler = h
}

// SetReplyTimeout sets how long Run waits for each reply.
func (b *Bridge) SetReplyTimeout(d time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.timeout = d
}

// TxData returns the reply buffer.
func (b *Bridge) TxData() []byte {
	return b.txBuf
}

// Reply writes the first n bytes of TxData as one line.
func (b *Bridge) Reply(n int, tag uint8) {
	if n > len(b.txBuf) {
		n = len(b.txBuf)
	}

	b.writeMutex.Lock()
	err := b.writeLine(b.txBuf[:n])
	b.writeMutex.Unlock()
	if err != nil {
		pkg.LogWarn(pkg.ComponentBridge, "reply failed", "tag", tag, "error", err)
	}

	select {
	case b.replied <- tag:
	default:
	}
}

func (b *Bridge) writeLine(data []byte) error {
	var line []byte
	switch b.mode {
	case ModeHex:
		line = make([]byte, hex.EncodedLen(len(data))+1)
		hex.Encode(line, data)
	default:
		line = make([]byte, len(data)+1)
		copy(line, data)
	}
	line[len(line)-1] = '\n'
	_, err := b.rw.Write(line)
	return err
}

func (b *Bridge) decode(line string) ([]byte, error) {
	line = strings.TrimRight(line, "\r")
	if b.mode != ModeHex {
		return []byte(line), nil
	}
	data, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return data, nil
}

// Run reads commands until the stream ends or ctx is cancelled. Lines that
// fail to decode are skipped.
func (b *Bridge) Run(ctx context.Context) error {
	b.mutex.RLock()
	h := b.handler
	timeout := b.timeout
	b.mutex.RUnlock()
	if h == nil {
		return pkg.ErrNotConfigured
	}

	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(b.rw)
		scanner.Buffer(make([]byte, 0, 4096), 2*len(b.txBuf)+64)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("read line: %w", err)
			}
			return nil
		case line = <-lines:
		}

		cmd, err := b.decode(line)
		if err != nil {
			pkg.LogWarn(pkg.ComponentBridge, "line skipped", "error", err)
			continue
		}

		b.tag++
		if b.tag == 0 {
			b.tag = 1
		}
		tag := b.tag

		pkg.LogDebug(pkg.ComponentBridge, "command", "tag", tag, "len", len(cmd))
		h.Receive(cmd)
		h.RequestResponse(tag, len(b.txBuf))

		if err := b.waitReply(ctx, tag, timeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pkg.LogWarn(pkg.ComponentBridge, "no reply", "tag", tag, "error", err)
		}
	}
}

func (b *Bridge) waitReply(ctx context.Context, tag uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return pkg.ErrTimeout
		case got := <-b.replied:
			if got == tag {
				return nil
			}
		}
	}
}

// OpenSerial opens a serial port at baud, 8N1.
func OpenSerial(path string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	pkg.LogInfo(pkg.ComponentBridge, "serial port opened", "port", path, "baud", baud)
	return port, nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}
