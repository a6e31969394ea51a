package sim

import (
	"encoding/binary"
	"sync"

	"github.com/ardnew/softtmc/hal"
	"github.com/ardnew/softtmc/pkg"
)

// Fault selects PL operations that the simulator should fail.
type Fault uint8

// Fault bits.
const (
	FaultTx    Fault = 1 << iota // Tx returns hal.ErrTxFailed
	FaultStart                   // StartPull returns hal.ErrTxFailed
	FaultPull                    // an armed pull ends in hal.PullError
)

// Source fills a pull destination with data.
type Source func(dst []byte)

// WordCounter returns a Source producing little-endian incrementing 32-bit
// words, continuing from where the previous pull stopped.
func WordCounter() Source {
	var next uint32
	return func(dst []byte) {
		var w [4]byte
		for i := 0; i < len(dst); i += 4 {
			binary.LittleEndian.PutUint32(w[:], next)
			copy(dst[i:], w[:])
			next++
		}
	}
}

// PLConfig configures the simulated PL.
type PLConfig struct {
	// PullPolls is how many PullStatus calls report busy before the pull
	// completes.
	PullPolls uint32

	// Source produces pulled data. Defaults to WordCounter.
	Source Source

	// Active starts the PL enabled.
	Active bool
}

// PL is a simulated programmable-logic peripheral implementing hal.PL.
type PL struct {
	status    hal.PLStatus
	faults    Fault
	pullPolls uint32
	source    Source

	// Pull state
	dst       []byte
	pull      hal.PullStatus
	remaining uint32

	// Statistics
	lastTx  []byte
	txCount int
	pulls   int
	stops   int

	mutex sync.Mutex
}

// NewPL creates a simulated PL.
func NewPL(cfg PLConfig) *PL {
	if cfg.Source == nil {
		cfg.Source = WordCounter()
	}
	p := &PL{
		pullPolls: cfg.PullPolls,
		source:    cfg.Source,
	}
	if cfg.Active {
		p.status = hal.PLActive
	}
	return p
}

// SetFaults replaces the set of injected faults.
func (p *PL) SetFaults(f Fault) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.faults = f
}

// Status implements hal.PL.
func (p *PL) Status() hal.PLStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status
}

// Enable implements hal.PL. Disabling the PL aborts any armed pull.
func (p *PL) Enable(on bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if on {
		p.status = hal.PLActive
	} else {
		p.status = hal.PLInactive
		p.dst = nil
		p.pull = hal.PullIdle
	}
	pkg.LogDebug(pkg.ComponentHAL, "PL enable", "status", p.status)
}

// Tx implements hal.PL. The simulated PL loops the command back unchanged.
func (p *PL) Tx(buf []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.status != hal.PLActive {
		return hal.ErrPLInactive
	}
	if p.faults&FaultTx != 0 {
		return hal.ErrTxFailed
	}
	p.lastTx = append(p.lastTx[:0], buf...)
	p.txCount++
	return nil
}

// StartPull implements hal.PL.
func (p *PL) StartPull(dst []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch {
	case p.status != hal.PLActive:
		return hal.ErrPLInactive
	case p.faults&FaultStart != 0:
		return hal.ErrTxFailed
	case p.pull == hal.PullBusy:
		return hal.ErrPullBusy
	case len(dst) > 0 && !hal.Aligned(dst):
		return hal.ErrMisaligned
	}

	p.dst = dst
	p.pull = hal.PullBusy
	p.remaining = p.pullPolls
	p.pulls++
	pkg.LogDebug(pkg.ComponentHAL, "pull armed", "len", len(dst), "polls", p.pullPolls)
	return nil
}

// PullStatus implements hal.PL.
func (p *PL) PullStatus() hal.PullStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.pull != hal.PullBusy {
		return p.pull
	}
	switch {
	case p.faults&FaultPull != 0:
		p.pull = hal.PullError
		p.dst = nil
	case p.remaining > 0:
		p.remaining--
	default:
		p.source(p.dst)
		p.pull = hal.PullReady
		p.dst = nil
	}
	return p.pull
}

// StopPull implements hal.PL.
func (p *PL) StopPull() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.dst = nil
	p.pull = hal.PullIdle
	p.stops++
}

// LastTx returns a copy of the most recent command transmitted to the PL.
func (p *PL) LastTx() []byte {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]byte(nil), p.lastTx...)
}

// TxCount returns the number of successful Tx calls.
func (p *PL) TxCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.txCount
}

// Pulls returns the number of pulls started.
func (p *PL) Pulls() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.pulls
}

// Stops returns the number of StopPull calls.
func (p *PL) Stops() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stops
}

// Compile-time interface check
var _ hal.PL = (*PL)(nil)
