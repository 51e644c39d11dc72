package notify

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/moyoez/imagerestore/estimator"
	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/types"
)

// Describe renders a running session the way a progress label would show it.
func Describe(snap estimator.Snapshot) string {
	done := humanize.Bytes(snap.CompletedBytes)
	total := humanize.Bytes(snap.TargetBytes)
	if snap.ETAKnown && snap.BytesPerSec > 0 && snap.USecRemaining > 0 {
		return fmt.Sprintf("%s of %s copied – %s remaining (%s/sec)",
			done, total,
			tool.FormatDuration(usecDuration(snap.USecRemaining), false),
			humanize.Bytes(snap.BytesPerSec))
	}
	return fmt.Sprintf("%s of %s copied", done, total)
}

// DescribeSummary renders a finished copy.
func DescribeSummary(s Summary) string {
	total := humanize.Bytes(s.TotalBytes)
	if s.Instant {
		return fmt.Sprintf("%s copied in %s", total, tool.FormatDuration(s.Duration, true))
	}
	return fmt.Sprintf("%s copied in %s (%s/sec)", total,
		tool.FormatDuration(s.Duration, true),
		humanize.Bytes(s.AvgBytesPerSec))
}

// DescribeSession renders a session snapshot as seen through the control API.
func DescribeSession(snap types.SessionSnapshot) string {
	if snap.State == types.SessionCompleted && !snap.EndedAt.IsZero() {
		return DescribeSummary(Summarize(snap.CompletedBytes, snap.EndedAt.Sub(snap.StartedAt)))
	}
	usec := snap.USecRemaining
	if !snap.ETAKnown {
		usec = 0
	}
	return Describe(snapshotOf(snap.CompletedBytes, snap.TargetBytes, snap.BytesPerSec, usec))
}

// usecDuration converts microseconds, saturating instead of wrapping.
func usecDuration(usec uint64) time.Duration {
	if usec > uint64(math.MaxInt64/int64(time.Microsecond)) {
		return math.MaxInt64
	}
	return time.Duration(usec) * time.Microsecond
}

// snapshotOf rebuilds a snapshot from Sink arguments; the ETA is known
// exactly when there is a rate.
func snapshotOf(completed, target, bytesPerSec, usecRemaining uint64) estimator.Snapshot {
	return estimator.Snapshot{
		CompletedBytes: completed,
		TargetBytes:    target,
		BytesPerSec:    bytesPerSec,
		USecRemaining:  usecRemaining,
		ETAKnown:       bytesPerSec > 0,
	}
}
