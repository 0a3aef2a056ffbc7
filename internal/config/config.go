// Package config loads ambient tool preferences from ~/.aircode/config.yaml.
// It holds no session state: no certificates, code phrases, or session ids
// live here, only tunables a user might want to override across runs.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aircode-dev/aircode/internal/aircodeerr"
)

// Config holds the optional overrides a user may set in their config file.
type Config struct {
	PortRangeStart          int    `yaml:"portRangeStart,omitempty"`
	PortRangeEnd            int    `yaml:"portRangeEnd,omitempty"`
	MulticastGroup          string `yaml:"multicastGroup,omitempty"`
	MulticastPort           int    `yaml:"multicastPort,omitempty"`
	DiscoveryTimeoutSeconds int    `yaml:"discoveryTimeoutSeconds,omitempty"`
	RateLimitMaxRequests    int    `yaml:"rateLimitMaxRequests,omitempty"`
}

// Defaults returns the spec's hardcoded fallback values.
func Defaults() Config {
	return Config{
		PortRangeStart:          53317,
		PortRangeEnd:            53417,
		MulticastGroup:          "224.0.0.167",
		MulticastPort:           53317,
		DiscoveryTimeoutSeconds: 300,
		RateLimitMaxRequests:    60,
	}
}

// Path returns the config file location, creating its parent directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", &aircodeerr.Config{Msg: "resolve home directory", Err: err}
	}
	dir := filepath.Join(home, ".aircode")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &aircodeerr.Config{Msg: "create config directory", Err: err}
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file, overlaying it on Defaults(). A missing file
// is not an error — it yields the defaults unchanged.
func Load() (Config, error) {
	cfg := Defaults()

	path, err := Path()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, &aircodeerr.Config{Msg: "read config file", Err: err}
	}

	var overrides Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return cfg, &aircodeerr.Config{Msg: "parse config file", Err: err}
	}

	applyOverrides(&cfg, overrides)
	return cfg, nil
}

func applyOverrides(base *Config, o Config) {
	if o.PortRangeStart != 0 {
		base.PortRangeStart = o.PortRangeStart
	}
	if o.PortRangeEnd != 0 {
		base.PortRangeEnd = o.PortRangeEnd
	}
	if o.MulticastGroup != "" {
		base.MulticastGroup = o.MulticastGroup
	}
	if o.MulticastPort != 0 {
		base.MulticastPort = o.MulticastPort
	}
	if o.DiscoveryTimeoutSeconds != 0 {
		base.DiscoveryTimeoutSeconds = o.DiscoveryTimeoutSeconds
	}
	if o.RateLimitMaxRequests != 0 {
		base.RateLimitMaxRequests = o.RateLimitMaxRequests
	}
}

// Save writes cfg to the config file as YAML.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &aircodeerr.Config{Msg: "encode config", Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &aircodeerr.Config{Msg: "write config file", Err: err}
	}
	return nil
}
