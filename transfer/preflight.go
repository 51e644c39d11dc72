package transfer

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// SlackWarnThreshold is how much smaller than the target an image may be
// before Preflight warns about it.
const SlackWarnThreshold = 1000 * 1000

var (
	ErrEmptyImage    = errors.New("cannot restore image of size 0")
	ErrImageTooLarge = errors.New("image is bigger than the target device")
)

// Verdict is the outcome of a size check that did not fail.
type Verdict struct {
	SourceBytes uint64
	TargetBytes uint64
	// Warning is set when the restore may proceed but the user should confirm.
	Warning string
}

// Preflight compares an image against its target before any session is
// started. The engine itself never refuses a size mismatch.
func Preflight(sourceBytes, targetBytes uint64) (Verdict, error) {
	v := Verdict{SourceBytes: sourceBytes, TargetBytes: targetBytes}
	switch {
	case sourceBytes == 0:
		return v, ErrEmptyImage
	case sourceBytes > targetBytes:
		return v, fmt.Errorf("%w: the image is %s bigger", ErrImageTooLarge, humanize.Bytes(sourceBytes-targetBytes))
	case targetBytes-sourceBytes > SlackWarnThreshold:
		v.Warning = fmt.Sprintf("The image is %s smaller than the target device", humanize.Bytes(targetBytes-sourceBytes))
	}
	return v, nil
}

// PreflightLocators opens both ends through the engine's providers, reads
// their sizes and runs Preflight. Nothing is read or written.
func (e *Engine) PreflightLocators(req Request) (Verdict, error) {
	src, err := e.Sources.OpenSource(req.Source)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w %s: %w", ErrSourceOpen, req.Source, err)
	}
	defer src.Close()
	sourceBytes, err := src.Size()
	if err != nil {
		return Verdict{}, fmt.Errorf("%w %s: %w", ErrSourceSize, req.Source, err)
	}

	dst, err := e.Targets.OpenTarget(req.Target)
	if err != nil {
		return Verdict{SourceBytes: sourceBytes}, fmt.Errorf("%w %s: %w", ErrTargetOpen, req.Target, err)
	}
	defer dst.Close()
	targetBytes, err := dst.Size()
	if err != nil {
		return Verdict{SourceBytes: sourceBytes}, fmt.Errorf("%w %s: %w", ErrTargetSize, req.Target, err)
	}
	return Preflight(sourceBytes, targetBytes)
}
