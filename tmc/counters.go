package tmc

import "sync/atomic"

type counters struct {
	ignoredWrites    atomic.Uint64
	emptyReads       atomic.Uint64
	truncatedReplies atomic.Uint64
	overruns         atomic.Uint64
}

// Stats is a snapshot of the engine's diagnostic counters.
type Stats struct {
	State            string `json:"state"`
	Replies          uint32 `json:"replies"`
	IgnoredWrites    uint64 `json:"ignored_writes"`
	EmptyReads       uint64 `json:"empty_reads"`
	TruncatedReplies uint64 `json:"truncated_replies"`
	Overruns         uint64 `json:"overruns"`
}

// Stats returns a snapshot of the diagnostic counters.
func (e *Engine) Stats() Stats {
	tx := e.Transaction()
	return Stats{
		State:            e.State().String(),
		Replies:          tx.Count,
		IgnoredWrites:    e.counters.ignoredWrites.Load(),
		EmptyReads:       e.counters.emptyReads.Load(),
		TruncatedReplies: e.counters.truncatedReplies.Load(),
		Overruns:         e.counters.overruns.Load(),
	}
}
