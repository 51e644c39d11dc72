package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// readPiece is how much ReadExact asks for before looking at the token again.
const readPiece = 256 * 1024

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// ReadExact fills buf from src. It returns ErrCancelled if the token fires
// before buf is full, and wraps ErrShortRead when src ends early.
// Sources that support read deadlines (pipes, sockets) are unblocked on cancel.
func ReadExact(src io.Reader, buf []byte, token *CancellationToken) (int, error) {
	if token != nil {
		if token.IsCancelled() {
			return 0, ErrCancelled
		}
		if d, ok := src.(readDeadliner); ok {
			stop := context.AfterFunc(token.Context(), func() {
				_ = d.SetReadDeadline(time.Unix(1, 0))
			})
			defer stop()
		}
	}

	got := 0
	for got < len(buf) {
		end := min(got+readPiece, len(buf))
		n, err := src.Read(buf[got:end])
		got += n
		if token != nil && token.IsCancelled() {
			return got, ErrCancelled
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) && token != nil && token.IsCancelled() {
				return got, ErrCancelled
			}
			if errors.Is(err, io.EOF) {
				if got == len(buf) {
					return got, nil
				}
				return got, ErrShortRead
			}
			return got, err
		}
		if n == 0 {
			return got, io.ErrNoProgress
		}
	}
	return got, nil
}

// WriteAllRetrying writes all of buf to dst. EINTR and EAGAIN are retried
// immediately with no backoff and no limit; any other error is returned along
// with the number of bytes that made it.
func WriteAllRetrying(dst io.Writer, buf []byte) (int, error) {
	done := 0
	for done < len(buf) {
		n, err := dst.Write(buf[done:])
		if n > 0 {
			done += n
		}
		if err != nil {
			if isTransient(err) {
				continue
			}
			return done, err
		}
		if n == 0 {
			return done, io.ErrShortWrite
		}
	}
	return done, nil
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN)
}
