package transfer

import (
	"errors"
	"strings"
	"testing"
)

func TestPreflight(t *testing.T) {
	tests := []struct {
		name        string
		source      uint64
		target      uint64
		wantErr     error
		wantWarning string
	}{
		{name: "empty image", source: 0, target: 1 << 30, wantErr: ErrEmptyImage},
		{name: "image too large", source: 2_000_000_000, target: 1_000_000_000, wantErr: ErrImageTooLarge},
		{name: "equal", source: 1 << 30, target: 1 << 30},
		{name: "small slack", source: 1_000_000_000, target: 1_000_500_000},
		{name: "slack at threshold", source: 1_000_000_000, target: 1_001_000_000},
		{name: "large slack", source: 1_000_000_000, target: 4_000_000_000, wantWarning: "3.0 GB smaller"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Preflight(tt.source, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantWarning == "" && v.Warning != "" {
				t.Fatalf("unexpected warning %q", v.Warning)
			}
			if !strings.Contains(v.Warning, tt.wantWarning) {
				t.Fatalf("warning %q does not mention %q", v.Warning, tt.wantWarning)
			}
		})
	}
}

func TestPreflightTooLargeNamesDifference(t *testing.T) {
	_, err := Preflight(1_500_000_000, 1_000_000_000)
	if err == nil || !strings.Contains(err.Error(), "500 MB bigger") {
		t.Fatalf("err = %v", err)
	}
}

func TestPreflightLocators(t *testing.T) {
	src := newMemSource(pattern(4096))
	dst := &memTarget{size: 8 << 20}
	e := newEngine(&fakeProviders{src: src, dst: dst})

	v, err := e.PreflightLocators(Request{Source: "a.img", Target: "/dev/sdz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.SourceBytes != 4096 || v.TargetBytes != 8<<20 || v.Warning == "" {
		t.Fatalf("unexpected verdict %#v", v)
	}
	if src.readCount() != 0 || dst.attempts != 0 {
		t.Fatalf("preflight performed I/O")
	}
	if !src.closed || !dst.closed {
		t.Fatalf("preflight leaked handles")
	}
}
