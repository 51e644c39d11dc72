package tool

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/imagerestore/types"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	var onDisk types.AppConfig
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.BufferSize != 1024*1024 || onDisk.ProgressInterval != 200*time.Millisecond {
		t.Fatalf("unexpected config on disk: %#v", onDisk)
	}
}

func TestLoadConfigOverlaysAndSanitizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: 127.0.0.1:9000\nbufferSize: -1\nprogressInterval: 1s\nestimatorSamples: 1\nnotify: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	def := DefaultConfig()
	if cfg.Listen != "127.0.0.1:9000" || !cfg.Notify || cfg.ProgressInterval != time.Second {
		t.Fatalf("file values not applied: %#v", cfg)
	}
	if cfg.BufferSize != def.BufferSize || cfg.EstimatorSamples != def.EstimatorSamples {
		t.Fatalf("invalid values not reset: %#v", cfg)
	}
	if cfg.WipeCommand != def.WipeCommand {
		t.Fatalf("missing keys should keep defaults, got %q", cfg.WipeCommand)
	}
	if GetCurrentConfig().Listen != "127.0.0.1:9000" {
		t.Fatalf("CurrentConfig not updated")
	}
}

func TestLoadConfigRejectsDirectory(t *testing.T) {
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected an error for a directory path")
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flags := SetFlagsOn(fs, []string{"-useListen", "127.0.0.1:1", "-useBufferSize", "4096", "-skipNotify", "-source", "a.img", "-target", "sdb"})

	cfg := DefaultConfig()
	cfg.Notify = true
	ApplyFlagOverrides(&cfg, flags)
	if cfg.Listen != "127.0.0.1:1" || cfg.BufferSize != 4096 || cfg.Notify {
		t.Fatalf("overrides not applied: %#v", cfg)
	}
	if flags.Source != "a.img" || flags.Target != "sdb" {
		t.Fatalf("unexpected flags %#v", flags)
	}
}
