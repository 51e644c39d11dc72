package tool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/imagerestore/types"
)

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
	// flagOverrides holds CLI flag overrides (set by main after SetFlags).
	flagOverrides *types.Config
)

// SetFlagOverrides stores the current CLI flag config.
func SetFlagOverrides(c *types.Config) {
	flagOverrides = c
}

// GetFlagOverrides returns a copy of flag overrides, or nil if not set.
func GetFlagOverrides() types.Config {
	if flagOverrides == nil {
		return types.Config{}
	}
	return *flagOverrides
}

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Listen:           "127.0.0.1:53318",
		BufferSize:       1024 * 1024, // page aligned, one chunk per read/write
		ProgressInterval: 200 * time.Millisecond,
		EstimatorWindow:  5 * time.Second,
		EstimatorSamples: 32,
		Notify:           false,
		NotifySocket:     "/tmp/imagerestore-notify.sock",
		NotifyWebsocket:  true,
		WipeCommand:      "wipefs --all --force",
		ExclusiveOpen:    true,
		SessionTTL:       10 * time.Minute,
		StartRateLimit:   time.Second,
	}
}

func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("Created new config file at %s", path)
			CurrentConfig = cfg
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}

	// zero or negative values fall back to defaults instead of breaking the engine
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		DefaultLogger.Warnf("bufferSize %d is invalid, using %d", cfg.BufferSize, def.BufferSize)
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if cfg.EstimatorSamples < 2 {
		cfg.EstimatorSamples = def.EstimatorSamples
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}

	CurrentConfig = cfg
	return cfg, nil
}

// ApplyFlagOverrides folds non-zero CLI flags into cfg.
func ApplyFlagOverrides(cfg *types.AppConfig, flags types.Config) {
	if flags.UseListen != "" {
		cfg.Listen = flags.UseListen
	}
	if flags.UseBufferSize > 0 {
		cfg.BufferSize = flags.UseBufferSize
	}
	if flags.SkipNotify {
		cfg.Notify = false
	}
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}

// ConfigResponseFrom renders cfg for the config API.
func ConfigResponseFrom(cfg types.AppConfig) types.ConfigResponse {
	return types.ConfigResponse{
		BufferSize:       cfg.BufferSize,
		ProgressInterval: cfg.ProgressInterval.String(),
		EstimatorWindow:  cfg.EstimatorWindow.String(),
		EstimatorSamples: cfg.EstimatorSamples,
		Notify:           cfg.Notify,
		NotifyWebsocket:  cfg.NotifyWebsocket,
		WipeCommand:      cfg.WipeCommand,
		ExclusiveOpen:    cfg.ExclusiveOpen,
		SessionTTL:       cfg.SessionTTL.String(),
	}
}
