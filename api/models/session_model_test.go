package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moyoez/imagerestore/device"
	"github.com/moyoez/imagerestore/transfer"
	"github.com/moyoez/imagerestore/types"
)

func TestClaimTarget(t *testing.T) {
	if _, ok := ClaimTarget("/dev/claim-test"); !ok {
		t.Fatalf("first claim should succeed")
	}
	if _, ok := ClaimTarget("/dev/claim-test"); ok {
		t.Fatalf("second claim should fail while the first is held")
	}
	ReleaseTarget("/dev/claim-test")
	if _, ok := ClaimTarget("/dev/claim-test"); !ok {
		t.Fatalf("claim after release should succeed")
	}
	ReleaseTarget("/dev/claim-test")
}

func TestClaimTargetUsesDevicePath(t *testing.T) {
	if _, ok := ClaimTarget("sdq"); !ok {
		t.Fatalf("claim of sdq should succeed")
	}
	defer ReleaseTarget("sdq")

	for _, alias := range []string{"/dev/sdq", "/dev//sdq", "/dev/../dev/sdq"} {
		if _, ok := ClaimTarget(alias); ok {
			ReleaseTarget(alias)
			t.Fatalf("%s should share the claim on sdq", alias)
		}
	}
}

func TestTrackSessionMovesToFinished(t *testing.T) {
	SetSessionTTL(time.Minute)
	dir := t.TempDir()
	src := filepath.Join(dir, "disk.img")
	dst := filepath.Join(dir, "target.img")
	if err := os.WriteFile(src, make([]byte, 8192), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, make([]byte, 8192), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &device.Provider{Runner: device.NoopRunner{}}
	engine := &transfer.Engine{Sources: p, Targets: p, BufferSize: 4096}
	if _, ok := ClaimTarget(dst); !ok {
		t.Fatal("claim failed")
	}
	h := transfer.Start(engine, transfer.Request{Source: src, Target: dst}, nil, nil)
	TrackSession(dst, h)
	h.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, active := GetActiveSession(h.Id()); !active {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, active := GetActiveSession(h.Id()); active {
		t.Fatalf("session still active after it finished")
	}

	snap, ok := LookupSession(h.Id())
	if !ok || snap.State != types.SessionCompleted || snap.CompletedBytes != 8192 {
		t.Fatalf("unexpected finished snapshot %#v (found=%v)", snap, ok)
	}

	found := false
	for _, s := range ListSessions() {
		if s.SessionId == h.Id() {
			found = true
		}
	}
	if !found {
		t.Fatalf("finished session missing from ListSessions")
	}

	if _, ok := ClaimTarget(dst); !ok {
		t.Fatalf("target should be free after the session finished")
	}
	ReleaseTarget(dst)
}
