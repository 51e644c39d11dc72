package estimator

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultMaxSamples bounds how many samples the window keeps.
	DefaultMaxSamples = 32
	// DefaultWindow bounds how old the oldest kept sample may be relative to the newest.
	DefaultWindow = 5 * time.Second
)

// Sample is one (timestamp, cumulative bytes) observation.
type Sample struct {
	At    time.Time
	Bytes uint64
}

// Snapshot is a consistent copy of the estimator state taken under one lock.
type Snapshot struct {
	CompletedBytes uint64
	TargetBytes    uint64
	BytesPerSec    uint64
	USecRemaining  uint64 // 0 when ETAKnown is false
	ETAKnown       bool
}

// Fraction returns completed/target clamped to [0,1].
func (s Snapshot) Fraction() float64 {
	if s.TargetBytes == 0 {
		return 0
	}
	f := float64(s.CompletedBytes) / float64(s.TargetBytes)
	if f > 1 {
		return 1
	}
	return f
}

// Estimator computes a smoothed throughput from a sliding window of samples.
// It is safe for concurrent use; the lock is only held to copy values in or out.
type Estimator struct {
	mu          sync.Mutex
	targetBytes uint64
	maxSamples  int
	window      time.Duration
	samples     []Sample
	now         func() time.Time
}

// Option tweaks an Estimator at construction.
type Option func(*Estimator)

// WithMaxSamples sets the count bound of the window. Values below 2 are ignored.
func WithMaxSamples(n int) Option {
	return func(e *Estimator) {
		if n >= 2 {
			e.maxSamples = n
		}
	}
}

// WithWindow sets the age bound of the window. Zero disables age pruning.
func WithWindow(d time.Duration) Option {
	return func(e *Estimator) {
		if d >= 0 {
			e.window = d
		}
	}
}

// WithClock replaces time.Now, used by AddSample.
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an estimator for a transfer of targetBytes.
func New(targetBytes uint64, opts ...Option) *Estimator {
	e := &Estimator{
		targetBytes: targetBytes,
		maxSamples:  DefaultMaxSamples,
		window:      DefaultWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.samples = make([]Sample, 0, e.maxSamples)
	return e
}

// AddSample records completedBytes at the current time.
func (e *Estimator) AddSample(completedBytes uint64) {
	e.AddSampleAt(e.now(), completedBytes)
}

// AddSampleAt records completedBytes at the given time. Samples that go back in
// time or in bytes are dropped; a sample at the same instant replaces the last one.
func (e *Estimator) AddSampleAt(at time.Time, completedBytes uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.samples); n > 0 {
		last := e.samples[n-1]
		if at.Before(last.At) || completedBytes < last.Bytes {
			return
		}
		if at.Equal(last.At) {
			e.samples[n-1].Bytes = completedBytes
			return
		}
	}

	e.samples = append(e.samples, Sample{At: at, Bytes: completedBytes})
	e.prune(at)
}

// prune drops samples outside the count and age bounds. Caller holds mu.
func (e *Estimator) prune(now time.Time) {
	drop := 0
	if over := len(e.samples) - e.maxSamples; over > 0 {
		drop = over
	}
	if e.window > 0 {
		cutoff := now.Add(-e.window)
		// keep at least two samples so a stall longer than the window still has a rate
		for drop < len(e.samples)-2 && e.samples[drop].At.Before(cutoff) {
			drop++
		}
	}
	if drop == 0 {
		return
	}
	n := copy(e.samples, e.samples[drop:])
	e.samples = e.samples[:n]
}

func (e *Estimator) bytesPerSecLocked() uint64 {
	if len(e.samples) < 2 {
		return 0
	}
	first := e.samples[0]
	last := e.samples[len(e.samples)-1]
	elapsed := last.At.Sub(first.At)
	if elapsed <= 0 || last.Bytes <= first.Bytes {
		return 0
	}
	delta := last.Bytes - first.Bytes
	usec := uint64(elapsed / time.Microsecond)
	if usec == 0 {
		return 0
	}
	// split to avoid overflowing delta*1e6 on very large transfers
	whole := delta / usec * uint64(time.Second/time.Microsecond)
	frac := delta % usec * uint64(time.Second/time.Microsecond) / usec
	return whole + frac
}

func (e *Estimator) completedLocked() uint64 {
	if len(e.samples) == 0 {
		return 0
	}
	return e.samples[len(e.samples)-1].Bytes
}

func (e *Estimator) usecRemainingLocked() (uint64, bool) {
	rate := e.bytesPerSecLocked()
	if rate == 0 {
		return 0, false
	}
	completed := e.completedLocked()
	if completed >= e.targetBytes {
		return 0, true
	}
	const perSec = uint64(time.Second / time.Microsecond)
	remaining := e.targetBytes - completed
	secs := remaining / rate
	rest := remaining % rate
	if secs > (math.MaxUint64-perSec)/perSec {
		return math.MaxUint64, true
	}
	return secs*perSec + rest*perSec/rate, true
}

// BytesPerSec returns the windowed rate, 0 with fewer than two samples.
func (e *Estimator) BytesPerSec() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bytesPerSecLocked()
}

// USecRemaining returns the estimated microseconds left, or 0 when unknown.
func (e *Estimator) USecRemaining() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	usec, _ := e.usecRemainingLocked()
	return usec
}

// CompletedBytes returns the byte count of the newest sample.
func (e *Estimator) CompletedBytes() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completedLocked()
}

// TargetBytes returns the fixed total the estimator was created with.
func (e *Estimator) TargetBytes() uint64 {
	return e.targetBytes
}

// Samples returns a copy of the current window, oldest first.
func (e *Estimator) Samples() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

// Snapshot copies every derived value under a single lock acquisition.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	usec, known := e.usecRemainingLocked()
	return Snapshot{
		CompletedBytes: e.completedLocked(),
		TargetBytes:    e.targetBytes,
		BytesPerSec:    e.bytesPerSecLocked(),
		USecRemaining:  usec,
		ETAKnown:       known,
	}
}
