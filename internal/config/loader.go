package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up inside a directory passed to Load.
const DefaultFile = "config.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a YAML file, or from DefaultFile inside a
// directory. ${VAR} references are expanded from the environment, unset keys
// keep their defaults and relative paths resolve against the config file's
// directory. When a .checksums manifest sits next to the file, the file must
// match it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFile)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", DefaultFile, absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.File = absPath
	cfg.resolvePaths(filepath.Dir(absPath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// resolvePaths makes relative filesystem paths absolute against baseDir.
func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.State.Path, &c.State.LockPath, &c.Paths.SourceDir, &c.Paths.DerivedDir} {
		if *p == "" || filepath.IsAbs(*p) || strings.Contains(*p, ":memory:") {
			continue
		}
		*p = filepath.Join(baseDir, *p)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is and rejected by Validate.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.Service.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("service.log_level must be one of: debug, info, warn, error (got %q)", c.Service.LogLevel)
	}
	switch strings.ToLower(c.Service.LogFormat) {
	case "json", "text":
	default:
		add("service.log_format must be json or text (got %q)", c.Service.LogFormat)
	}

	if c.State.Path == "" {
		add("state.path is required")
	}
	if c.Paths.SourceDir == "" {
		add("paths.source_dir is required")
	}
	if c.Paths.DerivedDir == "" {
		add("paths.derived_dir is required")
	}
	if c.Paths.SourceDir != "" && filepath.Clean(c.Paths.SourceDir) == filepath.Clean(c.Paths.DerivedDir) {
		add("paths.source_dir and paths.derived_dir must differ")
	}

	if c.API.Enabled && c.API.Listen == "" {
		add("api.listen is required when api.enabled is true")
	}

	if c.Watcher.Settle < 0 {
		add("watcher.settle must not be negative")
	}
	if c.Watcher.SettleTimeout < 0 {
		add("watcher.settle_timeout must not be negative")
	}
	if c.Watcher.RemoteURL != "" {
		if u, err := url.Parse(c.Watcher.RemoteURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("watcher.remote_url must be an absolute URL (got %q)", c.Watcher.RemoteURL)
		}
	}

	if c.Transform.Width <= 0 || c.Transform.Height <= 0 {
		add("transform.width and transform.height must be positive")
	}
	if c.Transform.Quality < 1 || c.Transform.Quality > 100 {
		add("transform.quality must be within 1..100 (got %d)", c.Transform.Quality)
	}
	if c.Transform.MaxPixels <= 0 {
		add("transform.max_pixels must be positive")
	}
	if c.Transform.Timeout < 0 {
		add("transform.timeout must not be negative")
	}

	for field, v := range map[string]string{
		"api.auth.api_key":   c.API.Auth.APIKey,
		"watcher.remote_url": c.Watcher.RemoteURL,
		"state.path":         c.State.Path,
		"paths.source_dir":   c.Paths.SourceDir,
		"paths.derived_dir":  c.Paths.DerivedDir,
	} {
		if m := envVarPattern.FindString(v); m != "" {
			add("%s references unset environment variable %s", field, m)
		}
	}

	return errors.Join(errs...)
}
