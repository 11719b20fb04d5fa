// Package config loads this tool's own settings from an optional HCL
// file, falling back to built-in defaults when none is given — the
// same "optional file, sensible inference otherwise" posture the
// teacher gives its topology schema.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/tilboerner/cherrymusic-rewrite/internal/store"
)

// Config is the full set of knobs an operator can tune without
// touching code: where the database lives, how big an Update batch
// commits, which isolation level Update opens its session with, and
// how long a session waits on a busy lock before giving up.
type Config struct {
	BaseDir       string `hcl:"base_dir,optional"`
	BatchSize     int    `hcl:"batch_size,optional"`
	Isolation     string `hcl:"isolation,optional"`
	BusyTimeoutMs int    `hcl:"busy_timeout_ms,optional"`
}

// Defaults returns the built-in configuration used when no file is
// given: store.DefaultBaseDir, the index package's own batch size
// (left zero here so callers fall through to index.Update's default),
// IMMEDIATE isolation, and no busy_timeout pragma.
func Defaults() Config {
	return Config{
		BaseDir:       store.DefaultBaseDir,
		BatchSize:     0,
		Isolation:     "immediate",
		BusyTimeoutMs: 0,
	}
}

// Load reads path as HCL into Config, starting from Defaults() so a
// file only needs to set the fields it wants to override. An empty
// path returns Defaults() unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveIsolation maps the configured isolation name to a
// store.Isolation, matching cherrymusic's own DEFERRED/IMMEDIATE/
// EXCLUSIVE vocabulary. An unrecognized or empty name falls back to
// store.Default, so callers still get index.Update's own fallback.
func (c Config) ResolveIsolation() store.Isolation {
	switch c.Isolation {
	case "deferred":
		return store.Deferred
	case "immediate":
		return store.Immediate
	case "exclusive":
		return store.Exclusive
	default:
		return store.Default
	}
}
