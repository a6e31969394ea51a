package tmc

import (
	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// plTx sends the staged bytes to the PL. The PL's response replaces them.
func (e *Engine) plTx(op Op) step {
	if err := e.pl.Tx(e.out[:op.Len]); err != nil {
		pkg.LogDebug(pkg.ComponentEngine, "PL transfer failed", "error", err)
		return finish(0)
	}
	return finish(op.Len)
}

// plPull arms a pull into the first aligned offset after the staged command,
// then sends the command. The reply is the command, the pad and the pulled
// data.
func (e *Engine) plPull(op Op) step {
	echo, pull := op.Len, op.Extra
	align := hal.AlignPad(e.out, echo)
	total := echo + align + pull
	clear(e.out[echo : echo+align])

	if err := e.pl.StartPull(e.out[echo+align : total]); err != nil {
		pkg.LogDebug(pkg.ComponentEngine, "pull start failed", "error", err)
		return finish(0)
	}
	if err := e.pl.Tx(e.out[:echo]); err != nil {
		pkg.LogDebug(pkg.ComponentEngine, "pull command failed", "error", err)
		e.pl.StopPull()
		return finish(0)
	}
	return rearm(Op{Kind: OpPLPullPoll, Len: total})
}

// plPullPoll checks an armed pull once per tick until it leaves busy.
func (e *Engine) plPullPoll(op Op) step {
	switch s := e.pl.PullStatus(); s {
	case hal.PullBusy:
		return rearm(op)
	case hal.PullReady:
		return finish(op.Len)
	default:
		pkg.LogDebug(pkg.ComponentEngine, "pull failed", "status", s)
		e.pl.StopPull()
		return finish(0)
	}
}
