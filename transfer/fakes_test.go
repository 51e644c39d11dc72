package transfer

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/moyoez/imagerestore/estimator"
)

type memSource struct {
	r       io.Reader
	size    uint64
	sizeErr error
	delay   time.Duration

	mu     sync.Mutex
	reads  int
	closed bool
}

func newMemSource(data []byte) *memSource {
	return &memSource{r: bytes.NewReader(data), size: uint64(len(data))}
}

func (s *memSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.r.Read(p)
}

func (s *memSource) Size() (uint64, error) { return s.size, s.sizeErr }

func (s *memSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type memTarget struct {
	size uint64

	// failAt makes the n-th Write (1-based) fail with failErr.
	failAt  int
	failErr error
	// transient is returned (with no bytes written) before each successful write, then cleared.
	transient []error

	formatErr error
	rescanErr error

	mu       sync.Mutex
	buf      bytes.Buffer
	writes   []int
	attempts int
	formats  int
	rescans  int
	closed   bool
	// order records Close, FormatEmpty and Rescan in call order.
	order []string
}

func (t *memTarget) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++
	if len(t.transient) > 0 {
		err := t.transient[0]
		t.transient = t.transient[1:]
		return 0, err
	}
	if t.failAt > 0 && len(t.writes)+1 == t.failAt {
		return 0, t.failErr
	}
	t.writes = append(t.writes, len(p))
	return t.buf.Write(p)
}

func (t *memTarget) Size() (uint64, error) { return t.size, nil }

func (t *memTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.order = append(t.order, "close")
	return nil
}

func (t *memTarget) FormatEmpty() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.formats++
	t.order = append(t.order, "format")
	return t.formatErr
}

func (t *memTarget) Rescan() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rescans++
	t.order = append(t.order, "rescan")
	return t.rescanErr
}

type fakeProviders struct {
	src    Source
	srcErr error
	dst    Target
	dstErr error

	targetOpened bool
}

func (p *fakeProviders) OpenSource(string) (Source, error) {
	if p.srcErr != nil {
		return nil, p.srcErr
	}
	return p.src, nil
}

func (p *fakeProviders) OpenTarget(string) (Target, error) {
	p.targetOpened = true
	if p.dstErr != nil {
		return nil, p.dstErr
	}
	return p.dst, nil
}

func newEngine(p *fakeProviders) *Engine {
	return &Engine{Sources: p, Targets: p}
}

type recordingProgress struct {
	mu       sync.Mutex
	ticks    []estimator.Snapshot
	results  []Result
	onTick   func(n int)
	busyFrom int
}

func (r *recordingProgress) OnTick(snap estimator.Snapshot) bool {
	r.mu.Lock()
	if r.busyFrom > 0 && len(r.ticks) >= r.busyFrom {
		r.mu.Unlock()
		return false
	}
	r.ticks = append(r.ticks, snap)
	n := len(r.ticks)
	hook := r.onTick
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return true
}

func (r *recordingProgress) Finish(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// stepClock advances by step every time it is read.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

var errIO = errors.New("input/output error")
