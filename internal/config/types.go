package config

import "time"

// Config represents the complete imageledger configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	State     StateConfig     `yaml:"state"`
	Paths     PathsConfig     `yaml:"paths"`
	API       APIConfig       `yaml:"api"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Transform TransformConfig `yaml:"transform"`

	// File is the absolute path the config was loaded from.
	File string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines ledger storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
	// LockPath defaults to Path + ".lock".
	LockPath string `yaml:"lock_path"`
}

// PathsConfig names the two trees being reconciled.
type PathsConfig struct {
	SourceDir  string `yaml:"source_dir"`
	DerivedDir string `yaml:"derived_dir"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey enables bearer auth when non-empty.
	APIKey string `yaml:"api_key"`
}

// WatcherConfig controls the directory watcher.
type WatcherConfig struct {
	Settle           time.Duration `yaml:"settle"`
	SettleTimeout    time.Duration `yaml:"settle_timeout"`
	ReconcileOnStart bool          `yaml:"reconcile_on_start"`
	// RemoteURL sends intents to a running server instead of processing in-process.
	RemoteURL string `yaml:"remote_url"`
}

// TransformConfig controls the derived artifact encoding.
type TransformConfig struct {
	Width     int           `yaml:"width"`
	Height    int           `yaml:"height"`
	Quality   int           `yaml:"quality"`
	MaxPixels int64         `yaml:"max_pixels"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "imageledger",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/ledger.db",
		},
		Paths: PathsConfig{
			SourceDir:  "./images",
			DerivedDir: "./processed",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:5000",
		},
		Watcher: WatcherConfig{
			Settle:           250 * time.Millisecond,
			SettleTimeout:    30 * time.Second,
			ReconcileOnStart: true,
		},
		Transform: TransformConfig{
			Width:     500,
			Height:    700,
			Quality:   85,
			MaxPixels: 89_478_485,
			Timeout:   2 * time.Minute,
		},
	}
}

// LockFile returns the lock path, derived from the state path when unset.
func (c *Config) LockFile() string {
	if c.State.LockPath != "" {
		return c.State.LockPath
	}
	return c.State.Path + ".lock"
}
