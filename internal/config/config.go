// Package config handles the persistent daemon configuration.
//
// The config is a JSON mapping with a small set of recognized options.
// Unknown keys are preserved across rewrites so that newer versions can
// add options without older daemons dropping them.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"useaid/internal/store"
)

// Evaluation frameworks.
const (
	FrameworkRaw   = "raw"
	FrameworkSpace = "space"
)

// Config holds the recognized options plus any unknown keys found on disk.
type Config struct {
	MilestoneTracking   bool       `json:"milestone_tracking"`
	AutoSync            bool       `json:"auto_sync"`
	SyncIntervalHours   int        `json:"sync_interval_hours"`
	EvaluationFramework string     `json:"evaluation_framework"`
	LastSyncAt          *time.Time `json:"last_sync_at"`
	Auth                *Auth      `json:"auth"`

	extra map[string]json.RawMessage

	mu sync.RWMutex
}

// Auth holds the remote service credentials, if logged in.
type Auth struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// User identifies the logged-in account.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// Default returns a config with the documented defaults.
func Default() *Config {
	return &Config{
		MilestoneTracking:   true,
		AutoSync:            true,
		SyncIntervalHours:   24,
		EvaluationFramework: FrameworkRaw,
	}
}

// recognized keys, in the order they are written.
var knownKeys = []string{
	"milestone_tracking", "auto_sync", "sync_interval_hours",
	"evaluation_framework", "last_sync_at", "auth",
}

func isKnownKey(k string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes the recognized options and keeps everything else
// in the extra map.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d := Default()
	c.MilestoneTracking = d.MilestoneTracking
	c.AutoSync = d.AutoSync
	c.SyncIntervalHours = d.SyncIntervalHours
	c.EvaluationFramework = d.EvaluationFramework

	type known struct {
		MilestoneTracking   *bool      `json:"milestone_tracking"`
		AutoSync            *bool      `json:"auto_sync"`
		SyncIntervalHours   *int       `json:"sync_interval_hours"`
		EvaluationFramework *string    `json:"evaluation_framework"`
		LastSyncAt          *time.Time `json:"last_sync_at"`
		Auth                *Auth      `json:"auth"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	if k.MilestoneTracking != nil {
		c.MilestoneTracking = *k.MilestoneTracking
	}
	if k.AutoSync != nil {
		c.AutoSync = *k.AutoSync
	}
	if k.SyncIntervalHours != nil {
		c.SyncIntervalHours = *k.SyncIntervalHours
	}
	if k.EvaluationFramework != nil {
		c.EvaluationFramework = *k.EvaluationFramework
	}
	c.LastSyncAt = k.LastSyncAt
	c.Auth = k.Auth

	c.extra = make(map[string]json.RawMessage)
	for key, val := range raw {
		if !isKnownKey(key) {
			c.extra[key] = val
		}
	}
	return nil
}

// MarshalJSON writes the recognized options plus any preserved unknown keys.
func (c *Config) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(knownKeys)+len(c.extra))

	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("config: encode %s: %w", key, err)
		}
		out[key] = b
		return nil
	}
	if err := put("milestone_tracking", c.MilestoneTracking); err != nil {
		return nil, err
	}
	if err := put("auto_sync", c.AutoSync); err != nil {
		return nil, err
	}
	if err := put("sync_interval_hours", c.SyncIntervalHours); err != nil {
		return nil, err
	}
	if err := put("evaluation_framework", c.EvaluationFramework); err != nil {
		return nil, err
	}
	if err := put("last_sync_at", c.LastSyncAt); err != nil {
		return nil, err
	}
	if err := put("auth", c.Auth); err != nil {
		return nil, err
	}
	for key, val := range c.extra {
		out[key] = val
	}
	return json.Marshal(out)
}

// Load reads the config file; missing or malformed files load as defaults.
func Load(paths store.Paths) *Config {
	cfg := Default()
	store.ReadJSON(paths.ConfigFile(), cfg)
	if cfg.EvaluationFramework != FrameworkRaw && cfg.EvaluationFramework != FrameworkSpace {
		cfg.EvaluationFramework = FrameworkRaw
	}
	return cfg
}

// Save writes the config atomically.
func (c *Config) Save(paths store.Paths) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return store.WriteJSON(paths.ConfigFile(), c, store.PermDataFile)
}

// Snapshot returns the current option values as a plain mapping, for the
// status tool.
func (c *Config) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := map[string]any{
		"milestone_tracking":   c.MilestoneTracking,
		"auto_sync":            c.AutoSync,
		"sync_interval_hours":  c.SyncIntervalHours,
		"evaluation_framework": c.EvaluationFramework,
	}
	if c.LastSyncAt != nil {
		snap["last_sync_at"] = c.LastSyncAt.Format(time.RFC3339)
	}
	snap["logged_in"] = c.Auth != nil
	return snap
}

// Replace swaps in the values from a freshly loaded config. Used by the
// file watcher on external edits.
func (c *Config) Replace(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.MilestoneTracking = next.MilestoneTracking
	c.AutoSync = next.AutoSync
	c.SyncIntervalHours = next.SyncIntervalHours
	c.EvaluationFramework = next.EvaluationFramework
	c.LastSyncAt = next.LastSyncAt
	c.Auth = next.Auth
	c.extra = next.extra
}

// MilestoneTrackingEnabled reads the flag under the lock.
func (c *Config) MilestoneTrackingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MilestoneTracking
}

// Framework returns the effective evaluation framework, falling back to
// raw for unknown values.
func (c *Config) Framework() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.EvaluationFramework == FrameworkSpace {
		return FrameworkSpace
	}
	return FrameworkRaw
}
