package tmc

import (
	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// flashTx transceives the staged bytes, followed by Extra read-back bytes.
func (e *Engine) flashTx(op Op) step {
	buf := e.out[:op.Len+op.Extra]
	clear(buf[op.Len:])

	if err := e.flash.Transceive(buf); err != nil {
		pkg.LogWarn(pkg.ComponentEngine, "flash transceive failed", "error", err)
		return finish(0)
	}
	if !op.ReadBack {
		return finish(0)
	}
	return finish(len(buf))
}

// flashWait replies with the status byte after polling up to Bound times.
func (e *Engine) flashWait(op Op) step {
	e.out[0] = e.flash.Wait(op.Bound)
	return finish(1)
}

// flashProg programs the staged bytes if the flash is not busy. The reply is
// the status read before programming, so a skipped program shows as busy.
func (e *Engine) flashProg(op Op) step {
	status := e.flash.Wait(op.Bound)
	if status&hal.FlashStatusBusy == 0 {
		wren := [1]byte{hal.FlashCmdWriteEnable}
		if err := e.flash.Transceive(wren[:]); err != nil {
			pkg.LogWarn(pkg.ComponentEngine, "flash write enable failed", "error", err)
		} else if err := e.flash.Transceive(e.out[:op.Len]); err != nil {
			pkg.LogWarn(pkg.ComponentEngine, "flash program failed", "error", err)
		}
	} else {
		pkg.LogDebug(pkg.ComponentEngine, "flash busy, program skipped", "status", status)
	}
	e.out[0] = status
	return finish(1)
}
