package transfer

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/imagerestore/estimator"
	"github.com/moyoez/imagerestore/tool"
)

// DefaultProgressInterval is the minimum spacing between samples and progress updates.
const DefaultProgressInterval = 200 * time.Millisecond

// Progress receives estimator snapshots while a session runs and exactly one
// Finish call at the end. OnTick reports whether the snapshot was taken; a busy
// consumer drops it.
type Progress interface {
	OnTick(snap estimator.Snapshot) bool
	Finish(res Result)
}

// Engine copies a source onto a target in fixed-size chunks.
// The zero value of every tuning field means "use the default".
type Engine struct {
	Sources SourceProvider
	Targets TargetProvider

	BufferSize       int
	ProgressInterval time.Duration
	EstimatorWindow  time.Duration
	EstimatorSamples int

	// Now replaces time.Now for the reporting gate, samples and durations.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) bufferSize() int {
	if e.BufferSize > 0 {
		return e.BufferSize
	}
	return DefaultBufferSize
}

func (e *Engine) gate() *rate.Limiter {
	interval := e.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}
	if interval < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (e *Engine) newEstimator(target uint64) *estimator.Estimator {
	opts := []estimator.Option{estimator.WithClock(e.now)}
	if e.EstimatorSamples > 0 {
		opts = append(opts, estimator.WithMaxSamples(e.EstimatorSamples))
	}
	if e.EstimatorWindow > 0 {
		opts = append(opts, estimator.WithWindow(e.EstimatorWindow))
	}
	return estimator.New(target, opts...)
}

// Run executes one restore synchronously on the calling goroutine.
func (e *Engine) Run(req Request, token *CancellationToken, progress Progress) Result {
	return e.RunSession(NewSession(req), token, progress)
}

// RunSession is Run on a session the caller already holds, so it can be
// observed while the copy is in progress.
func (e *Engine) RunSession(s *Session, token *CancellationToken, progress Progress) Result {
	if token == nil {
		token = NewCancellationToken(nil)
	}
	start := e.now()
	s.begin(start)
	tool.DefaultLogger.Infof("[Restore] session %s: %s -> %s", s.Id, s.Request.Source, s.Request.Target)

	res, src, dst := e.copy(s, token, progress)
	res.Duration = e.now().Sub(start)

	if src != nil {
		if err := src.Close(); err != nil {
			tool.DefaultLogger.Warnf("[Restore] session %s: error closing source: %v", s.Id, err)
		}
	}
	if dst != nil {
		if err := dst.Close(); err != nil {
			tool.DefaultLogger.Warnf("[Restore] session %s: error closing target: %v", s.Id, err)
		}
		e.recover(s, dst, res)
	}

	s.finish(res, e.now())
	switch res.State {
	case StateCompleted:
		tool.DefaultLogger.Infof("[Restore] session %s: copied %d bytes in %s", s.Id, res.TotalBytes, res.Duration)
	case StateCancelled:
		tool.DefaultLogger.Infof("[Restore] session %s: cancelled after %d bytes", s.Id, res.TotalBytes)
	default:
		tool.DefaultLogger.Errorf("[Restore] session %s: %v", s.Id, res.Err)
	}
	if progress != nil {
		progress.Finish(res)
	}
	return res
}

// recover puts the target back into a sane state: wipe what we half wrote,
// then let the kernel re-read the partition table.
func (e *Engine) recover(s *Session, dst Target, res Result) {
	if res.State == StateFailed {
		if err := dst.FormatEmpty(); err != nil {
			tool.DefaultLogger.Warnf("[Restore] session %s: error wiping target after failure: %v", s.Id, err)
		}
	}
	if err := dst.Rescan(); err != nil {
		tool.DefaultLogger.Warnf("[Restore] session %s: error rescanning target: %v", s.Id, err)
	}
}

// copy runs the chunk loop. Opened handles are returned even on failure so
// the caller can close them and run recovery.
func (e *Engine) copy(s *Session, token *CancellationToken, progress Progress) (Result, Source, Target) {
	failed := func(err error, completed uint64) Result {
		return Result{State: StateFailed, Err: err, TotalBytes: completed}
	}

	src, err := e.Sources.OpenSource(s.Request.Source)
	if err != nil {
		return failed(fmt.Errorf("%w %s: %w", ErrSourceOpen, s.Request.Source, err), 0), nil, nil
	}
	sourceBytes, err := src.Size()
	if err != nil {
		return failed(fmt.Errorf("%w %s: %w", ErrSourceSize, s.Request.Source, err), 0), src, nil
	}
	if sourceBytes == 0 {
		return failed(fmt.Errorf("%w %s: image is size 0", ErrSourceSize, s.Request.Source), 0), src, nil
	}

	dst, err := e.Targets.OpenTarget(s.Request.Target)
	if err != nil {
		return failed(fmt.Errorf("%w %s: %w", ErrTargetOpen, s.Request.Target, err), 0), src, nil
	}
	targetBytes, err := dst.Size()
	if err != nil {
		return failed(fmt.Errorf("%w %s: %w", ErrTargetSize, s.Request.Target, err), 0), src, dst
	}
	if targetBytes == 0 {
		return failed(fmt.Errorf("%w %s: device is size 0", ErrTargetSize, s.Request.Target), 0), src, dst
	}

	est := e.newEstimator(sourceBytes)
	s.setSizes(sourceBytes, targetBytes, est)

	size := e.bufferSize()
	buf := alignedBuffer(size)
	gate := e.gate()

	var completed uint64
	for completed < sourceBytes {
		if token.IsCancelled() {
			return Result{State: StateCancelled, TotalBytes: completed}, src, dst
		}

		if now := e.now(); gate.AllowN(now, 1) {
			if completed > 0 {
				est.AddSampleAt(now, completed)
			}
			if progress != nil {
				progress.OnTick(est.Snapshot())
			}
		}

		chunk := buf[:min(uint64(size), sourceBytes-completed)]
		n, err := ReadExact(src, chunk, token)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return Result{State: StateCancelled, TotalBytes: completed}, src, dst
			}
			if errors.Is(err, ErrShortRead) {
				return failed(fmt.Errorf("%w: requested %d bytes at offset %d but read %d bytes",
					ErrShortRead, len(chunk), completed, n), completed), src, dst
			}
			return failed(fmt.Errorf("%w: error reading from offset %d: %w", ErrShortRead, completed, err), completed), src, dst
		}

		written, err := WriteAllRetrying(dst, chunk)
		completed += uint64(written)
		s.advance(completed)
		if err != nil {
			return failed(fmt.Errorf("%w at offset %d: %w", ErrWrite, completed, err), completed), src, dst
		}
	}

	est.AddSampleAt(e.now(), completed)
	return Result{State: StateCompleted, TotalBytes: completed}, src, dst
}
