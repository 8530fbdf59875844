// Package config loads the engine tuning parameters. Fields are pointers so
// a partial JSON file overrides only what it names; the Get* accessors fall
// back to the built-in defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults for every tunable.
const (
	DefaultCacheCapacity       = 3
	DefaultStaleCenterFraction = 0.20
	DefaultChunkSize           = 500
)

// EngineConfig is the root tuning configuration. The schema doubles as the
// payload for runtime re-tuning, so partial documents are expected.
type EngineConfig struct {
	// Viewport cache params
	CacheCapacity       *int     `json:"cache_capacity,omitempty"`
	StaleCenterFraction *float64 `json:"stale_center_fraction,omitempty"`

	// Delivery params
	ChunkSize *int `json:"chunk_size,omitempty"`

	// Strict makes index/store desyncs fatal instead of logged skips.
	Strict *bool `json:"strict,omitempty"`
}

// GetCacheCapacity returns the viewport cache entry budget.
func (c *EngineConfig) GetCacheCapacity() int {
	if c != nil && c.CacheCapacity != nil {
		return *c.CacheCapacity
	}
	return DefaultCacheCapacity
}

// GetStaleCenterFraction returns the center-drift staleness threshold.
func (c *EngineConfig) GetStaleCenterFraction() float64 {
	if c != nil && c.StaleCenterFraction != nil {
		return *c.StaleCenterFraction
	}
	return DefaultStaleCenterFraction
}

// GetChunkSize returns the per-chunk feature bound for incremental delivery.
func (c *EngineConfig) GetChunkSize() int {
	if c != nil && c.ChunkSize != nil {
		return *c.ChunkSize
	}
	return DefaultChunkSize
}

// GetStrict reports whether desyncs should be fatal.
func (c *EngineConfig) GetStrict() bool {
	return c != nil && c.Strict != nil && *c.Strict
}

// Validate rejects values that would wedge the engine.
func (c *EngineConfig) Validate() error {
	if c.CacheCapacity != nil && *c.CacheCapacity < 1 {
		return fmt.Errorf("cache_capacity must be >= 1, got %d", *c.CacheCapacity)
	}
	if c.StaleCenterFraction != nil && (*c.StaleCenterFraction <= 0 || *c.StaleCenterFraction >= 1) {
		return fmt.Errorf("stale_center_fraction must be in (0,1), got %v", *c.StaleCenterFraction)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1, got %d", *c.ChunkSize)
	}
	return nil
}

// Load reads an EngineConfig from a JSON file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &EngineConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
