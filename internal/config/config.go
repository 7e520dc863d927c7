// Package config holds the plugin's configuration (spec.md §6): the
// capture directory, the live-sink base URL, and whether event
// notifications are emitted. Reading the file itself is left to the
// caller (cmd/recordplay, or whatever host embeds the engine) — this
// package only decodes and normalizes an already-read byte slice, the
// same split the teacher draws between the on-disk YAML and the plain
// struct the rest of its packages consume.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the plugin's configuration, decoded from YAML.
type Config struct {
	// Path is the capture directory. Created with mode 0o755 if absent.
	Path string `yaml:"path"`

	// RTMPBase is the base URL a capture's live sink is published under;
	// the per-capture URL is RTMPBase+"/"+id.
	RTMPBase string `yaml:"rtmp"`

	// Events enables the host event-handler notifications spec.md §6
	// mentions (a "done" event on peer loss, etc).
	Events bool `yaml:"events"`

	// LegacyKeyframeClobber makes every session created with it share one
	// process-wide keyframe interval: each such session overwrites the
	// shared value with its own, and all of them use the most recently
	// written one. It does not force a 1-second cadence. Defaults to
	// false: each session then uses its own configured interval.
	LegacyKeyframeClobber bool `yaml:"legacy_keyframe_clobber"`

	// WriteQueueSize bounds the async queue of each capture writer
	// (internal/asyncwriter). The request dispatcher's worker queue does
	// not use it.
	WriteQueueSize int `yaml:"write_queue_size"`
}

// defaultWriteQueueSize matches the teacher's own default for its
// record-agent write queue.
const defaultWriteQueueSize = 2048

// Load decodes raw YAML bytes into a Config and applies defaults.
func Load(raw []byte) (*Config, error) {
	conf := &Config{}
	if err := yaml.Unmarshal(raw, conf); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = defaultWriteQueueSize
	}
}

// Validate checks required fields and creates the capture directory.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("config: path is required")
	}
	if err := os.MkdirAll(c.Path, 0o755); err != nil {
		return fmt.Errorf("config: create capture directory %s: %w", c.Path, err)
	}
	return nil
}
