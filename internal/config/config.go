package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DockerConfig controls the Docker-backed container source
type DockerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StoreConfig selects the resource store. An empty Path keeps resources in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig enables bearer token validation when Secret is set
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// Config holds the server configuration
type Config struct {
	Listen            string        `yaml:"listen"`
	NodeID            string        `yaml:"node_id"`
	FlushWindow       time.Duration `yaml:"flush_window"`
	OutboundQueue     int           `yaml:"outbound_queue"`
	SnapshotTTL       time.Duration `yaml:"snapshot_ttl"`
	SnapshotCacheSize int           `yaml:"snapshot_cache_size"`
	Dev               bool          `yaml:"dev"`
	Store             StoreConfig   `yaml:"store"`
	Docker            DockerConfig  `yaml:"docker"`
	Auth              AuthConfig    `yaml:"auth"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}

	return &Config{
		Listen:            "0.0.0.0:8090",
		NodeID:            hostname,
		FlushWindow:       500 * time.Millisecond,
		OutboundQueue:     64,
		SnapshotTTL:       5 * time.Minute,
		SnapshotCacheSize: 512,
		Docker: DockerConfig{
			Enabled:      true,
			PollInterval: 2 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file at path (if any), then LIVESYNC_*
// environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	str("LIVESYNC_LISTEN", &c.Listen)
	str("LIVESYNC_NODE_ID", &c.NodeID)
	str("LIVESYNC_STORE_PATH", &c.Store.Path)
	str("LIVESYNC_AUTH_SECRET", &c.Auth.Secret)
	boolean("LIVESYNC_DEV", &c.Dev)
	boolean("LIVESYNC_DOCKER_ENABLED", &c.Docker.Enabled)

	for key, dst := range map[string]*time.Duration{
		"LIVESYNC_FLUSH_WINDOW":         &c.FlushWindow,
		"LIVESYNC_SNAPSHOT_TTL":         &c.SnapshotTTL,
		"LIVESYNC_DOCKER_POLL_INTERVAL": &c.Docker.PollInterval,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"LIVESYNC_OUTBOUND_QUEUE":      &c.OutboundQueue,
		"LIVESYNC_SNAPSHOT_CACHE_SIZE": &c.SnapshotCacheSize,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if strings.Contains(c.NodeID, "/") {
		return fmt.Errorf("node_id %q must not contain '/'", c.NodeID)
	}
	if c.FlushWindow <= 0 {
		return fmt.Errorf("flush_window must be positive")
	}
	if c.OutboundQueue <= 0 {
		return fmt.Errorf("outbound_queue must be positive")
	}
	if c.Docker.Enabled && c.Docker.PollInterval <= 0 {
		return fmt.Errorf("docker.poll_interval must be positive")
	}
	return nil
}

// AuthEnabled reports whether bearer tokens are required
func (c *Config) AuthEnabled() bool {
	return c.Auth.Secret != ""
}
