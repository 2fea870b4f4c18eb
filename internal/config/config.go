// Package config loads the workspace configuration at .edda/config.json
// and the user-level configuration at ~/.config/edda/config.yaml.
//
// The workspace file has a fixed shape consumed by the core (GC policy,
// bridge contract); the user file tunes thresholds that are hand-tuned
// defaults otherwise (coordination staleness, phase detection).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBlobKeepDays is the retention window for unpinned non-artifact
// blobs when gc.blob_keep_days is unset.
const DefaultBlobKeepDays = 90

// GCConfig controls the blob reaper.
type GCConfig struct {
	BlobKeepDays uint32 `json:"blob_keep_days,omitempty"`
	BlobQuotaMB  uint32 `json:"blob_quota_mb,omitempty"`
}

// BridgeConfig is the contract surface consumed by external agent bridges.
// MaxContextChars is advisory for the presentation layer only.
type BridgeConfig struct {
	AutoDigest       *bool  `json:"auto_digest,omitempty"`
	MaxContextChars  uint32 `json:"max_context_chars,omitempty"`
	DigestFailedCmds bool   `json:"digest_failed_cmds,omitempty"`
}

// Config is the parsed .edda/config.json.
type Config struct {
	GC             GCConfig     `json:"gc,omitempty"`
	Bridge         BridgeConfig `json:"bridge,omitempty"`
	NotifyChannels []string     `json:"notify_channels,omitempty"`
}

// BlobKeepDays returns the effective retention window.
func (c *Config) BlobKeepDays() uint32 {
	if c.GC.BlobKeepDays == 0 {
		return DefaultBlobKeepDays
	}
	return c.GC.BlobKeepDays
}

// AutoDigest returns whether bridges may auto-ingest (default true).
func (c *Config) AutoDigest() bool {
	if c.Bridge.AutoDigest == nil {
		return true
	}
	return *c.Bridge.AutoDigest
}

// Load reads .edda/config.json. A missing file yields defaults; a malformed
// file is a configuration error surfaced verbatim, never retried.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - controlled path from workspace layout
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config atomically (temp + rename).
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil { // #nosec G306 - shared via git
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
