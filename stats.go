package slcan

import (
	"fmt"
	"sync/atomic"
)

type Stats struct {
	RxFrames  uint64
	TxFrames  uint64
	Acks      uint64
	Nacks     uint64
	Overflows uint64
	Dropped   uint64
	Errors    uint64
}

func (st Stats) String() string {
	return fmt.Sprintf("rx: %d tx: %d ack: %d nack: %d overflow: %d dropped: %d errors: %d",
		st.RxFrames, st.TxFrames, st.Acks, st.Nacks, st.Overflows, st.Dropped, st.Errors)
}

// counters are updated by the engine goroutine and read from anywhere
type counters struct {
	rxFrames  atomic.Uint64
	txFrames  atomic.Uint64
	acks      atomic.Uint64
	nacks     atomic.Uint64
	overflows atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		RxFrames:  c.rxFrames.Load(),
		TxFrames:  c.txFrames.Load(),
		Acks:      c.acks.Load(),
		Nacks:     c.nacks.Load(),
		Overflows: c.overflows.Load(),
		Dropped:   c.dropped.Load(),
		Errors:    c.errors.Load(),
	}
}
