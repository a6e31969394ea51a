package tmc

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// DefaultPeriod is the main loop period used by Run when none is given.
const DefaultPeriod = time.Millisecond

// Replier sends a reply of n bytes from the output buffer to the host,
// correlated with tag.
type Replier interface {
	Reply(n int, tag uint8)
}

// State summarizes the transaction state.
type State uint8

// Transaction states.
const (
	StateIdle    State = iota // No command pending
	StateRunning              // Command accepted, result not ready
	StateReady                // Result ready, waiting for the host
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Transaction describes the single in-flight request.
type Transaction struct {
	Pending   bool   // Command accepted and not yet replied
	Ready     bool   // Reply payload is in the output buffer
	Requested bool   // Host has asked for the reply
	Len       int    // Reply length
	Tag       uint8  // Host tag for the reply
	MaxLen    int    // Host's maximum reply length
	Count     uint32 // Replies sent
}

// Engine is the command engine.
//
// Receive and RequestResponse are called by the transport and never block on
// hardware. Receive reads and sets the PL status (hal.PL Status and Enable)
// under the engine lock; every other hardware call happens in Process, which
// is called from the main loop and runs the deferred operations.
type Engine struct {
	// Output buffer, borrowed from the transport
	out []byte

	replier Replier
	pl      hal.PL
	flash   hal.Flash

	identity Identity
	idnOnce  sync.Once
	idn      []byte

	// Transaction state and the deferred operation slot
	mutex sync.Mutex
	tx    Transaction
	op    Op

	counters counters
	wake     chan struct{}
}

// New creates an engine that stages replies in out and sends them with r.
func New(out []byte, r Replier, pl hal.PL, flash hal.Flash, opts ...Option) *Engine {
	e := &Engine{
		out:      out,
		replier:  r,
		pl:       pl,
		flash:    flash,
		identity: DefaultIdentity(),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Buffer returns the output buffer.
func (e *Engine) Buffer() []byte {
	return e.out
}

// Receive handles a command message from the host.
func (e *Engine) Receive(data []byte) {
	e.mutex.Lock()
	if e.tx.Pending {
		e.counters.overruns.Add(1)
		pkg.LogDebug(pkg.ComponentEngine, "overrun", "op", e.op.Kind)
	}
	handled := e.dispatch(data)
	e.mutex.Unlock()

	if !handled {
		e.counters.ignoredWrites.Add(1)
		pkg.LogDebug(pkg.ComponentDispatch, "command ignored", "len", len(data))
		return
	}
	e.signal()
}

// RequestResponse handles a host request for the reply. With nothing pending
// the host gets an empty reply immediately.
func (e *Engine) RequestResponse(tag uint8, maxLen int) {
	e.mutex.Lock()
	if !e.tx.Pending {
		e.mutex.Unlock()
		e.counters.emptyReads.Add(1)
		pkg.LogDebug(pkg.ComponentEngine, "empty read", "tag", tag)
		e.replier.Reply(0, tag)
		return
	}
	e.tx.Tag = tag
	e.tx.MaxLen = maxLen
	e.tx.Requested = true
	e.mutex.Unlock()
	e.signal()
}

// Process runs at most one deferred operation, then sends the reply if it is
// both ready and requested.
func (e *Engine) Process() {
	e.mutex.Lock()
	op := e.op
	e.op = Op{}
	e.mutex.Unlock()

	var s step
	if op.Kind != OpNone {
		s = e.execute(op)
	}

	e.mutex.Lock()
	if s.next.Kind != OpNone {
		e.op = s.next
	}
	if s.done {
		e.tx.Len = s.n
		e.tx.Ready = true
	}
	n, tag, ok := e.takeReply()
	e.mutex.Unlock()

	if ok {
		e.replier.Reply(n, tag)
	}
}

// Run calls Process every period, and whenever a command or reply request
// arrives, until ctx is done.
func (e *Engine) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	pkg.LogDebug(pkg.ComponentEngine, "engine running", "period", period)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.wake:
		}
		e.Process()
	}
}

// State returns the current transaction state.
func (e *Engine) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	switch {
	case !e.tx.Pending:
		return StateIdle
	case e.tx.Ready:
		return StateReady
	default:
		return StateRunning
	}
}

// Transaction returns a copy of the transaction state.
func (e *Engine) Transaction() Transaction {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.tx
}

// Pending returns the kind of the armed deferred operation.
func (e *Engine) Pending() OpKind {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.op.Kind
}

// takeReply clips and clears a ready and requested transaction.
// Caller must hold the mutex.
func (e *Engine) takeReply() (int, uint8, bool) {
	if !e.tx.Ready || !e.tx.Requested {
		return 0, 0, false
	}
	n := e.tx.Len
	if n > e.tx.MaxLen {
		n = e.tx.MaxLen
		e.counters.truncatedReplies.Add(1)
		pkg.LogDebug(pkg.ComponentEngine, "reply truncated", "len", e.tx.Len, "max", e.tx.MaxLen)
	}
	e.tx.Ready = false
	e.tx.Requested = false
	e.tx.Pending = false
	e.tx.Count++
	return n, e.tx.Tag, true
}

// replyNow completes the transaction with data copied into the output
// buffer. Caller must hold the mutex.
func (e *Engine) replyNow(data []byte) {
	e.tx.Pending = true
	e.tx.Len = copy(e.out, data)
	e.tx.Ready = true
}

// schedule arms the deferred operation slot. Caller must hold the mutex.
func (e *Engine) schedule(op Op) {
	e.tx.Pending = true
	e.tx.Ready = false
	e.op = op
	pkg.LogDebug(pkg.ComponentDispatch, "operation armed", "op", op.Kind, "len", op.Len)
}

// stage copies payload to the start of the output buffer.
func (e *Engine) stage(payload []byte) int {
	return copy(e.out, payload)
}

// execute runs one deferred operation against the hardware.
func (e *Engine) execute(op Op) step {
	switch op.Kind {
	case OpFlashTx:
		return e.flashTx(op)
	case OpFlashWait:
		return e.flashWait(op)
	case OpFlashProg:
		return e.flashProg(op)
	case OpPLTx:
		return e.plTx(op)
	case OpPLPull:
		return e.plPull(op)
	case OpPLPullPoll:
		return e.plPullPoll(op)
	default:
		return step{}
	}
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}
