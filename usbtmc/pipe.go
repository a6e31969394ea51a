package usbtmc

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softtmc/pkg"
)

// Pipe is a pair of bulk endpoints. Each Write is one transfer and each Read
// returns at most one transfer.
type Pipe interface {
	Read(ctx context.Context, buf []byte) (int, error)
	Write(ctx context.Context, data []byte) (int, error)
}

// LoopPipe is one end of an in-memory pipe pair.
type LoopPipe struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{}
	once *sync.Once
	ctrl *loopControl
}

// loopControl is the control handler shared by both ends of a pair.
type loopControl struct {
	handler ControlHandler
	mutex   sync.Mutex
}

// Loopback returns two connected in-memory pipes. Transfers written to one
// are read from the other.
func Loopback() (*LoopPipe, *LoopPipe) {
	a := make(chan []byte, 16)
	b := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}
	ctrl := &loopControl{}
	return &LoopPipe{in: a, out: b, done: done, once: once, ctrl: ctrl},
		&LoopPipe{in: b, out: a, done: done, once: once, ctrl: ctrl}
}

// Read implements Pipe. It returns pkg.ErrBufferTooSmall, consuming the
// transfer, if buf cannot hold it.
func (p *LoopPipe) Read(ctx context.Context, buf []byte) (int, error) {
	if p.closed() {
		return 0, pkg.ErrClosed
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.done:
		return 0, pkg.ErrClosed
	case data := <-p.in:
		if len(data) > len(buf) {
			return 0, fmt.Errorf("transfer of %d bytes: %w", len(data), pkg.ErrBufferTooSmall)
		}
		return copy(buf, data), nil
	}
}

// Write implements Pipe.
func (p *LoopPipe) Write(ctx context.Context, data []byte) (int, error) {
	if p.closed() {
		return 0, pkg.ErrClosed
	}
	pkt := append([]byte(nil), data...)
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.done:
		return 0, pkg.ErrClosed
	case p.out <- pkt:
		return len(data), nil
	}
}

// SetControlHandler implements ControlPipe. The handler answers Control
// calls made on either end.
func (p *LoopPipe) SetControlHandler(h ControlHandler) {
	p.ctrl.mutex.Lock()
	defer p.ctrl.mutex.Unlock()
	p.ctrl.handler = h
}

// Control implements Controller.
func (p *LoopPipe) Control(ctx context.Context, request uint8, buf []byte) (int, error) {
	if p.closed() {
		return 0, pkg.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.ctrl.mutex.Lock()
	h := p.ctrl.handler
	p.ctrl.mutex.Unlock()
	if h == nil {
		return 0, fmt.Errorf("control request %d: %w", request, pkg.ErrNotSupported)
	}
	return h(request, buf)
}

// Close closes both ends of the pipe.
func (p *LoopPipe) Close() error {
	p.once.Do(func() {
		close(p.done)
	})
	return nil
}

func (p *LoopPipe) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Compile-time interface checks
var (
	_ Pipe        = (*LoopPipe)(nil)
	_ Controller  = (*LoopPipe)(nil)
	_ ControlPipe = (*LoopPipe)(nil)
)
