package notify

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/imagerestore/estimator"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

type stubProvider struct{}

type stubSource struct{ *bytes.Reader }

func (stubSource) Close() error            { return nil }
func (s stubSource) Size() (uint64, error) { return uint64(s.Reader.Size()), nil }

type stubTarget struct{ io.Writer }

func (stubTarget) Close() error          { return nil }
func (stubTarget) Size() (uint64, error) { return 1 << 20, nil }
func (stubTarget) FormatEmpty() error    { return nil }
func (stubTarget) Rescan() error         { return nil }

func (stubProvider) OpenSource(string) (transfer.Source, error) {
	return stubSource{bytes.NewReader(make([]byte, 64*1024))}, nil
}

func (stubProvider) OpenTarget(string) (transfer.Target, error) {
	return stubTarget{io.Discard}, nil
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		snap estimator.Snapshot
		want string
	}{
		{
			name: "unknown rate",
			snap: estimator.Snapshot{CompletedBytes: 3_400_000, TargetBytes: 300_000_000},
			want: "3.4 MB of 300 MB copied",
		},
		{
			name: "known rate and eta",
			snap: estimator.Snapshot{CompletedBytes: 650_000_000, TargetBytes: 8_500_000_000, BytesPerSec: 8_900_000, USecRemaining: 5 * 60 * 1_000_000, ETAKnown: true},
			want: "650 MB of 8.5 GB copied – 5 minutes remaining (8.9 MB/sec)",
		},
		{
			name: "rate but nothing remaining",
			snap: estimator.Snapshot{CompletedBytes: 1000, TargetBytes: 1000, BytesPerSec: 100, ETAKnown: true},
			want: "1.0 kB of 1.0 kB copied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.snap); got != tt.want {
				t.Fatalf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribeSummary(t *testing.T) {
	got := DescribeSummary(Summarize(650_000_000, 73*time.Second))
	want := "650 MB copied in 1 minute and 13 seconds (8.9 MB/sec)"
	if got != want {
		t.Fatalf("DescribeSummary() = %q, want %q", got, want)
	}
	if got := DescribeSummary(Summarize(10, 0)); strings.Contains(got, "/sec") {
		t.Fatalf("instant copy should not carry a rate: %q", got)
	}
}

func TestDescribeSession(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	running := types.SessionSnapshot{
		State:          types.SessionRunning,
		CompletedBytes: 1_000_000,
		TargetBytes:    2_000_000,
		BytesPerSec:    500_000,
		USecRemaining:  2_000_000,
	}
	if got, want := DescribeSession(running), "1.0 MB of 2.0 MB copied"; got != want {
		t.Fatalf("ETA unknown: got %q, want %q", got, want)
	}

	done := types.SessionSnapshot{
		State:          types.SessionCompleted,
		CompletedBytes: 650_000_000,
		StartedAt:      start,
		EndedAt:        start.Add(73 * time.Second),
	}
	if got, want := DescribeSession(done), "650 MB copied in 1 minute and 13 seconds (8.9 MB/sec)"; got != want {
		t.Fatalf("completed: got %q, want %q", got, want)
	}
}

type fakeBroadcaster struct {
	got []*types.Notification
}

func (f *fakeBroadcaster) Broadcast(n *types.Notification) {
	f.got = append(f.got, n)
}

func TestBroadcastSink(t *testing.T) {
	b := &fakeBroadcaster{}
	sink := NewBroadcastSink("s1", b)

	sink.OnProgress(500, 1000, 100, 5_000_000)
	sink.OnError(fmt.Errorf("%w at offset 0: boom", transfer.ErrWrite))
	sink.OnCancelled()
	sink.OnComplete(1000, 1_000_000, 1000)

	if len(b.got) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(b.got))
	}
	wantTypes := []string{types.NotifyRestoreProgress, types.NotifyRestoreError, types.NotifyRestoreCancelled, types.NotifyRestoreEnd}
	for i, n := range b.got {
		if n.Type != wantTypes[i] {
			t.Fatalf("notification %d type = %s, want %s", i, n.Type, wantTypes[i])
		}
		if n.Data["sessionId"] != "s1" {
			t.Fatalf("notification %d missing session id", i)
		}
	}
	if b.got[0].Data["fraction"] != 0.5 {
		t.Fatalf("fraction = %v", b.got[0].Data["fraction"])
	}
	if b.got[0].Data["etaKnown"] != true {
		t.Fatalf("etaKnown = %v, want true with a rate", b.got[0].Data["etaKnown"])
	}
	if b.got[1].Data["kind"] != "write" {
		t.Fatalf("kind = %v", b.got[1].Data["kind"])
	}
}

func TestProgressWithoutRateMarksETAUnknown(t *testing.T) {
	b := &fakeBroadcaster{}
	NewBroadcastSink("s1", b).OnProgress(0, 1000, 0, 0)

	if len(b.got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(b.got))
	}
	if b.got[0].Data["etaKnown"] != false || b.got[0].Data["usecRemaining"] != uint64(0) {
		t.Fatalf("unexpected data %#v", b.got[0].Data)
	}
	if strings.Contains(b.got[0].Message, "remaining") {
		t.Fatalf("message should not carry an ETA: %q", b.got[0].Message)
	}
}

func TestDescribeSaturatesHugeETA(t *testing.T) {
	snap := estimator.Snapshot{CompletedBytes: 1, TargetBytes: 1 << 50, BytesPerSec: 1, USecRemaining: math.MaxUint64, ETAKnown: true}
	if got := Describe(snap); !strings.Contains(got, "hours") {
		t.Fatalf("huge ETA should render in hours, got %q", got)
	}
}

func TestSendNotificationOverUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan types.Notification, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var size uint32
		if err := binary.Read(conn, binary.LittleEndian, &size); err != nil {
			return
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		var n types.Notification
		if err := sonic.Unmarshal(payload, &n); err == nil {
			received <- n
		}
		_, _ = conn.Write([]byte(`{"status":"ok"}`))
	}()

	if err := SendRestoreStartNotification(path, "s1", "a.img", "/dev/sdz"); err != nil {
		t.Fatalf("SendRestoreStartNotification() error: %v", err)
	}

	select {
	case n := <-received:
		if n.Type != types.NotifyRestoreStart || n.Data["target"] != "/dev/sdz" {
			t.Fatalf("unexpected notification %#v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener got nothing")
	}
}

func TestSendNotificationListenerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var size uint32
		_ = binary.Read(conn, binary.LittleEndian, &size)
		_, _ = io.CopyN(io.Discard, conn, int64(size))
		_, _ = conn.Write([]byte(`{"error":"busy"}`))
	}()

	err = SendNotification(&types.Notification{Type: types.NotifyRestoreProgress}, path)
	if err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("err = %v, want listener error", err)
	}
}

func TestSendNotificationMissingSocket(t *testing.T) {
	err := SendNotification(&types.Notification{}, filepath.Join(t.TempDir(), "absent.sock"))
	if err == nil {
		t.Fatalf("expected an error for a missing socket")
	}
}
