package types

import "time"

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Listen           string        `yaml:"listen"`           // control API address, loopback only
	BufferSize       int           `yaml:"bufferSize"`       // chunk size in bytes
	ProgressInterval time.Duration `yaml:"progressInterval"` // minimum spacing of progress updates
	EstimatorWindow  time.Duration `yaml:"estimatorWindow"`
	EstimatorSamples int           `yaml:"estimatorSamples"`
	Notify           bool          `yaml:"notify"` // send notifications to NotifySocket
	NotifySocket     string        `yaml:"notifySocket"`
	NotifyWebsocket  bool          `yaml:"notifyWebsocket"`
	WipeCommand      string        `yaml:"wipeCommand"` // device path is appended
	ExclusiveOpen    bool          `yaml:"exclusiveOpen"`
	SessionTTL       time.Duration `yaml:"sessionTTL"` // how long finished sessions stay queryable
	StartRateLimit   time.Duration `yaml:"startRateLimit"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	UseListen     string
	UseBufferSize int
	SkipNotify    bool // if true, skip notify mode.
	DryWipe       bool // log the wipe command instead of running it

	Serve  bool   // run the control API
	Remote string // address of a running daemon
	Source string
	Target string
	Force  bool // proceed past a pre-flight warning
	Cancel string
	Status string
}

// ConfigResponse is the JSON shape for GET /api/restore/v1/config.
type ConfigResponse struct {
	BufferSize       int    `json:"buffer_size"`
	ProgressInterval string `json:"progress_interval"`
	EstimatorWindow  string `json:"estimator_window"`
	EstimatorSamples int    `json:"estimator_samples"`
	Notify           bool   `json:"notify"`
	NotifyWebsocket  bool   `json:"notify_websocket"`
	WipeCommand      string `json:"wipe_command"`
	ExclusiveOpen    bool   `json:"exclusive_open"`
	SessionTTL       string `json:"session_ttl"`
}
