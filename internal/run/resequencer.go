package run

import "github.com/strideworks/sprintgate/internal/pose"

// Resequencer restores submission order for tracked points produced by a
// parallel pose-extraction pool. The crossing detector's sign tracking is
// order-dependent, so out-of-order worker outputs must never reach it
// directly. Sequence numbers are assigned contiguously at submission time.
type Resequencer struct {
	next    int64
	pending map[int64]pose.TrackedPoint
	emit    func(pose.TrackedPoint)
}

// NewResequencer returns a resequencer delivering in-order points to emit.
func NewResequencer(emit func(pose.TrackedPoint)) *Resequencer {
	return &Resequencer{
		pending: make(map[int64]pose.TrackedPoint),
		emit:    emit,
	}
}

// Add accepts the result for sequence number seq, buffering it until every
// earlier result has been delivered. Not safe for concurrent use; fan worker
// outputs into a single goroutine that calls Add.
func (r *Resequencer) Add(seq int64, tp pose.TrackedPoint) {
	if seq < r.next {
		// Duplicate delivery of an already-emitted sequence number.
		return
	}
	r.pending[seq] = tp
	for {
		tp, ok := r.pending[r.next]
		if !ok {
			return
		}
		delete(r.pending, r.next)
		r.next++
		r.emit(tp)
	}
}

// Pending returns how many results are buffered waiting for a predecessor.
func (r *Resequencer) Pending() int {
	return len(r.pending)
}
