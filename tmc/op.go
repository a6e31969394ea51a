package tmc

import "fmt"

// OpKind identifies a deferred operation.
type OpKind uint8

// Deferred operation kinds.
const (
	OpNone       OpKind = iota // Slot empty
	OpFlashTx                  // Transceive the staged bytes on the flash bus
	OpFlashWait                // Poll flash status
	OpFlashProg                // Poll, then write-enable and program
	OpPLTx                     // Send the staged bytes to the PL
	OpPLPull                   // Arm a pull and send the staged command
	OpPLPullPoll               // Poll an armed pull
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpNone:
		return "none"
	case OpFlashTx:
		return "flash-tx"
	case OpFlashWait:
		return "flash-wait"
	case OpFlashProg:
		return "flash-prog"
	case OpPLTx:
		return "pl-tx"
	case OpPLPull:
		return "pl-pull"
	case OpPLPullPoll:
		return "pl-pull-poll"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is the content of the deferred operation slot. Staged bytes always start
// at the beginning of the output buffer.
type Op struct {
	Kind OpKind

	// Len is the number of staged bytes. For OpPLPullPoll it is the total
	// reply length computed when the pull was armed.
	Len int

	// Extra is the flash read-back length (OpFlashTx) or the pull length in
	// bytes (OpPLPull).
	Extra int

	// Bound is the flash status poll bound (OpFlashWait, OpFlashProg).
	Bound uint32

	// ReadBack selects whether OpFlashTx replies with the transceived bytes.
	ReadBack bool
}

// step is the outcome of running one deferred operation.
type step struct {
	next Op   // successor operation, if any
	n    int  // reply length when done
	done bool // reply is ready
}

func finish(n int) step {
	return step{n: n, done: true}
}

func rearm(op Op) step {
	return step{next: op}
}
