package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// overrides mirrors Config field-for-field but with pointer fields, so a
// JSONC sidecar only ever touches the keys it actually sets — the
// line-oriented KEY=VALUE file (config.go) is always the base, and this
// overlay applies on top of it once, at startup. There is no runtime
// key-value store, watcher, or env-var layer here: this is the one
// config path that ever needs it, and a pointer-struct overlay is a
// closer match for "optional JSON sidecar overlaying Config" than a
// generic reflect-driven key store would be.
type overrides struct {
	Port             *int    `json:"port"`
	DocumentRoot     *string `json:"document_root"`
	NumWorkers       *int    `json:"num_workers"`
	ThreadsPerWorker *int    `json:"threads_per_worker"`
	MaxQueueSize     *int    `json:"max_queue_size"`
	LogFile          *string `json:"log_file"`
	CacheSizeMB      *int    `json:"cache_size_mb"`
	TimeoutSeconds   *int    `json:"timeout_seconds"`
}

// loadOverridesJSON reads filename as JSON-with-comments (the optional
// <config>.overrides.jsonc sidecar, see SPEC_FULL.md AMBIENT STACK).
// hujson.Standardize strips the comments/trailing commas before handing
// the result to encoding/json, so an operator can annotate an overrides
// file without a separate preprocessing step.
func loadOverridesJSON(filename string) (overrides, error) {
	var o overrides

	data, err := os.ReadFile(filename)
	if err != nil {
		return o, fmt.Errorf("failed to read config file: %w", err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return o, fmt.Errorf("failed to standardize jsonc config: %w", err)
	}

	if err := json.Unmarshal(standardized, &o); err != nil {
		return o, fmt.Errorf("failed to parse JSON config: %w", err)
	}
	return o, nil
}

// applyTo overwrites cfg with every field o actually set, leaving
// everything else (defaults, or values already set by the KEY=VALUE
// file) untouched.
func (o overrides) applyTo(cfg *Config) {
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.DocumentRoot != nil {
		cfg.DocumentRoot = *o.DocumentRoot
	}
	if o.NumWorkers != nil {
		cfg.NumWorkers = *o.NumWorkers
	}
	if o.ThreadsPerWorker != nil {
		cfg.ThreadsPerWorker = *o.ThreadsPerWorker
	}
	if o.MaxQueueSize != nil {
		cfg.MaxQueueSize = *o.MaxQueueSize
	}
	if o.LogFile != nil {
		cfg.LogFile = *o.LogFile
	}
	if o.CacheSizeMB != nil {
		cfg.CacheSizeMB = *o.CacheSizeMB
	}
	if o.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *o.TimeoutSeconds
	}
}
