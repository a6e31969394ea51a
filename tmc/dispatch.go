package tmc

import (
	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// handler runs a command with the bytes following its keyword. It returns
// false if the command is malformed, in which case it has no side effects.
type handler func(e *Engine, b []byte) bool

type route struct {
	keyword string
	handle  handler
}

// router is an ordered keyword table for one level of the command tree.
type router []route

// dispatch runs the first route whose keyword prefixes b and accepts it.
func (r router) dispatch(e *Engine, b []byte) bool {
	for _, rt := range r {
		if hasPrefix(b, rt.keyword) && rt.handle(e, b[len(rt.keyword):]) {
			return true
		}
	}
	return false
}

// sub descends into next after the ':' separating levels.
func sub(next router) handler {
	return func(e *Engine, b []byte) bool {
		i, ok := skipThrough(b, ':')
		if !ok {
			return false
		}
		return next.dispatch(e, b[i:])
	}
}

// inactive only runs h while the PL is inactive, so the MCU owns the
// flash bus.
func inactive(h handler) handler {
	return func(e *Engine, b []byte) bool {
		if s := e.pl.Status(); s != hal.PLInactive {
			pkg.LogDebug(pkg.ComponentDispatch, "flash command while PL active", "status", s)
			return false
		}
		return h(e, b)
	}
}

var (
	stdRouter = router{
		{"IDN?", (*Engine).cmdIDN},
	}

	devRouter = router{
		{"PL", sub(plRouter)},
		{"TEST", sub(testRouter)},
	}

	plRouter = router{
		{"ACTIVE", (*Engine).cmdActive},
		{"TX", (*Engine).cmdTx},
		{"PULL", (*Engine).cmdPull},
		{"FLASH", inactive(sub(flashRouter))},
	}

	flashRouter = router{
		{"WR", (*Engine).cmdFlashWrite},
		{"RD", (*Engine).cmdFlashRead},
		{"WAIT", (*Engine).cmdFlashWait},
		{"PROG", (*Engine).cmdFlashProg},
	}

	testRouter = router{
		{"ECHO", (*Engine).cmdEcho},
	}
)

// dispatch routes a host message. Caller must hold the mutex.
func (e *Engine) dispatch(b []byte) bool {
	switch {
	case len(b) == 0:
		return false
	case b[0] == '*':
		return stdRouter.dispatch(e, b[1:])
	case b[0] == ':':
		b = b[1:]
	}
	return devRouter.dispatch(e, b)
}

// fits reports whether n bytes fit in the output buffer.
func (e *Engine) fits(n int) bool {
	return n <= len(e.out)
}

func (e *Engine) cmdIDN(b []byte) bool {
	e.idnOnce.Do(func() {
		e.idn = []byte(e.identity.String())
	})
	e.replyNow(e.idn)
	return true
}

func (e *Engine) cmdActive(b []byte) bool {
	if len(b) > 0 && b[0] == '?' {
		e.replyNow([]byte{e.pl.Status().Digit()})
		return true
	}
	v, ok := argValue(b)
	if !ok {
		return false
	}
	e.pl.Enable(v != 0)
	pkg.LogDebug(pkg.ComponentDispatch, "PL enable", "on", v != 0)
	return true
}

func (e *Engine) cmdTx(b []byte) bool {
	_, payload, ok := argBlock(b)
	if !ok || !e.fits(len(payload)) {
		return false
	}
	e.schedule(Op{Kind: OpPLTx, Len: e.stage(payload)})
	return true
}

func (e *Engine) cmdPull(b []byte) bool {
	words, payload, ok := argBlock(b)
	if !ok {
		return false
	}
	pull := int(words) * 4
	// Leave room for the worst-case alignment pad.
	if !e.fits(len(payload) + hal.PullAlign - 1 + pull) {
		return false
	}
	e.schedule(Op{Kind: OpPLPull, Len: e.stage(payload), Extra: pull})
	return true
}

func (e *Engine) cmdFlashWrite(b []byte) bool {
	if len(b) == 0 || b[0] != '#' || !e.fits(len(b)-1) {
		return false
	}
	e.schedule(Op{Kind: OpFlashTx, Len: e.stage(b[1:])})
	return true
}

func (e *Engine) cmdFlashRead(b []byte) bool {
	n, payload, ok := argBlock(b)
	if !ok || !e.fits(len(payload)+int(n)) {
		return false
	}
	e.schedule(Op{
		Kind:     OpFlashTx,
		Len:      e.stage(payload),
		Extra:    int(n),
		ReadBack: true,
	})
	return true
}

func (e *Engine) cmdFlashWait(b []byte) bool {
	bound, ok := argValue(b)
	if !ok {
		return false
	}
	e.schedule(Op{Kind: OpFlashWait, Bound: bound})
	return true
}

func (e *Engine) cmdFlashProg(b []byte) bool {
	bound, payload, ok := argBlock(b)
	if !ok || !e.fits(len(payload)) {
		return false
	}
	e.schedule(Op{Kind: OpFlashProg, Len: e.stage(payload), Bound: bound})
	return true
}

func (e *Engine) cmdEcho(b []byte) bool {
	_, payload, ok := argBlock(b)
	if !ok {
		return false
	}
	// replyNow clips to the buffer capacity.
	e.replyNow(payload)
	return true
}
