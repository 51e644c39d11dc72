package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/moyoez/imagerestore/estimator"
	"github.com/moyoez/imagerestore/transfer"
)

// Sink is what a host plugs in to hear about a restore. OnProgress is called
// from the reporter's delivery goroutine, never twice at once. Exactly one of
// the other three is called, once, at the end.
//
// usecRemaining is only meaningful when bytesPerSec is non-zero: the estimator
// knows the ETA exactly when it has a rate. With bytesPerSec == 0 the ETA is
// unknown and usecRemaining is 0; it does not mean the copy is done.
type Sink interface {
	OnProgress(completed, target, bytesPerSec, usecRemaining uint64)
	OnComplete(totalBytes, durationUsec, avgBytesPerSec uint64)
	OnError(err error)
	OnCancelled()
}

// Summary describes a finished copy.
type Summary struct {
	TotalBytes     uint64
	Duration       time.Duration
	AvgBytesPerSec uint64
	// Instant is set when the duration rounded to zero microseconds; no
	// average is computed then.
	Instant bool
}

// Summarize derives the average rate for a completed copy.
func Summarize(totalBytes uint64, d time.Duration) Summary {
	s := Summary{TotalBytes: totalBytes, Duration: d}
	usec := uint64(max(d, 0) / time.Microsecond)
	if usec == 0 {
		s.Instant = true
		return s
	}
	const perSec = uint64(time.Second / time.Microsecond)
	s.AvgBytesPerSec = totalBytes/usec*perSec + totalBytes%usec*perSec/usec
	return s
}

// Reporter sits between the copy worker and a Sink. A tick is handed to the
// sink only when the previous one has been delivered; otherwise it is dropped.
type Reporter struct {
	sink Sink

	pending atomic.Bool
	ticks   chan estimator.Snapshot
	drained chan struct{}

	finishOnce sync.Once
	closed     atomic.Bool

	mu      sync.Mutex
	summary *Summary
}

var _ transfer.Progress = (*Reporter)(nil)

// NewReporter starts a delivery goroutine that lives until Finish.
// A nil sink discards everything but still records the summary.
func NewReporter(sink Sink) *Reporter {
	if sink == nil {
		sink = MultiSink(nil)
	}
	r := &Reporter{
		sink:    sink,
		ticks:   make(chan estimator.Snapshot, 1),
		drained: make(chan struct{}),
	}
	go r.deliver()
	return r
}

func (r *Reporter) deliver() {
	defer close(r.drained)
	for snap := range r.ticks {
		r.sink.OnProgress(snap.CompletedBytes, snap.TargetBytes, snap.BytesPerSec, snap.USecRemaining)
		r.pending.Store(false)
	}
}

// OnTick queues snap unless one is still in flight. It must not be called
// concurrently with Finish.
func (r *Reporter) OnTick(snap estimator.Snapshot) bool {
	if r.closed.Load() {
		return false
	}
	if !r.pending.CompareAndSwap(false, true) {
		return false
	}
	r.ticks <- snap
	return true
}

// Busy reports whether a progress update is still being delivered.
func (r *Reporter) Busy() bool {
	return r.pending.Load()
}

// Finish waits for the in-flight progress update, then fires the terminal
// callback. Later calls do nothing.
func (r *Reporter) Finish(res transfer.Result) {
	r.finishOnce.Do(func() {
		r.closed.Store(true)
		close(r.ticks)
		<-r.drained

		switch res.State {
		case transfer.StateCompleted:
			s := Summarize(res.TotalBytes, res.Duration)
			r.setSummary(s)
			r.sink.OnComplete(s.TotalBytes, uint64(s.Duration/time.Microsecond), s.AvgBytesPerSec)
		case transfer.StateCancelled:
			r.sink.OnCancelled()
		default:
			r.sink.OnError(res.Err)
		}
	})
}

func (r *Reporter) setSummary(s Summary) {
	r.mu.Lock()
	r.summary = &s
	r.mu.Unlock()
}

// Summary returns the completion summary once a session has completed.
func (r *Reporter) Summary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return Summary{}, false
	}
	return *r.summary, true
}
