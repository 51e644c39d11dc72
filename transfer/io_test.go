package transfer

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestReadExactFillsBuffer(t *testing.T) {
	data := pattern(1 << 20)
	buf := make([]byte, len(data))

	n, err := ReadExact(io.MultiReader(bytes.NewReader(data[:10]), bytes.NewReader(data[10:])), buf, NewCancellationToken(nil))
	if err != nil || n != len(data) {
		t.Fatalf("ReadExact() = %d, %v", n, err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("buffer content mismatch")
	}
}

func TestReadExactShortRead(t *testing.T) {
	buf := make([]byte, 100)
	n, err := ReadExact(bytes.NewReader(make([]byte, 60)), buf, nil)
	if !errors.Is(err, ErrShortRead) || n != 60 {
		t.Fatalf("ReadExact() = %d, %v; want 60, ErrShortRead", n, err)
	}
}

func TestReadExactAlreadyCancelled(t *testing.T) {
	token := NewCancellationToken(nil)
	token.Cancel()
	n, err := ReadExact(bytes.NewReader(make([]byte, 10)), make([]byte, 10), token)
	if !errors.Is(err, ErrCancelled) || n != 0 {
		t.Fatalf("ReadExact() = %d, %v; want 0, ErrCancelled", n, err)
	}
}

func TestReadExactUnblocksOnCancel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	token := NewCancellationToken(nil)
	go func() {
		time.Sleep(50 * time.Millisecond)
		token.Cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := ReadExact(r, make([]byte, 4096), token)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ReadExact did not return after cancel")
	}
}

type chunkyWriter struct {
	max  int
	errs []error
	out  bytes.Buffer
}

func (w *chunkyWriter) Write(p []byte) (int, error) {
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.out.Write(p)
}

func TestWriteAllRetryingPartialWrites(t *testing.T) {
	w := &chunkyWriter{max: 3, errs: []error{nil, unix.EINTR, nil, unix.EAGAIN}}
	data := []byte("restore the image")

	n, err := WriteAllRetrying(w, data)
	if err != nil || n != len(data) {
		t.Fatalf("WriteAllRetrying() = %d, %v", n, err)
	}
	if w.out.String() != string(data) {
		t.Fatalf("wrote %q", w.out.String())
	}
}

func TestWriteAllRetryingFatalError(t *testing.T) {
	w := &chunkyWriter{max: 4, errs: []error{nil, unix.ENOSPC}}
	n, err := WriteAllRetrying(w, []byte("12345678"))
	if !errors.Is(err, unix.ENOSPC) || n != 4 {
		t.Fatalf("WriteAllRetrying() = %d, %v; want 4, ENOSPC", n, err)
	}
}

func TestAlignedBuffer(t *testing.T) {
	for _, align := range []int{512, 4096, 65536} {
		buf := alignedBufferTo(1000, align)
		if len(buf) != 1000 || cap(buf) != 1000 {
			t.Fatalf("align %d: len %d cap %d", align, len(buf), cap(buf))
		}
		if !isAligned(buf, align) {
			t.Fatalf("buffer not aligned to %d", align)
		}
	}
	if buf := alignedBuffer(DefaultBufferSize); !isAligned(buf, unix.Getpagesize()) {
		t.Fatalf("default buffer not page aligned")
	}
}
