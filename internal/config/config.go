// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads flowtrack settings from HCL, YAML or JSON files.
package config

import (
	"os"

	"grimm.is/flowtrack/internal/errors"
	"grimm.is/flowtrack/internal/flowtable"
	"grimm.is/flowtrack/internal/logging"
)

// Config is the top-level configuration.
type Config struct {
	FlowTable *FlowTableConfig `hcl:"flow_table,block" json:"flow_table,omitempty" yaml:"flow_table,omitempty"`
	Logging   *LoggingConfig   `hcl:"logging,block" json:"logging,omitempty" yaml:"logging,omitempty"`
}

// FlowTableConfig sizes the flow table. None of these can change once the
// table is created.
type FlowTableConfig struct {
	// Number of hash buckets.
	// @default: 1024
	Buckets int `hcl:"buckets,optional" json:"buckets,omitempty" yaml:"buckets,omitempty"`

	// Maximum flows per bucket. Inserts into a full bucket fail.
	// @default: 16
	BucketCapacity int `hcl:"bucket_capacity,optional" json:"bucket_capacity,omitempty" yaml:"bucket_capacity,omitempty"`

	// Bucket hash: "reference", "murmur" or "xxhash".
	// @default: "reference"
	Hash string `hcl:"hash,optional" json:"hash,omitempty" yaml:"hash,omitempty"`

	// Records pre-allocated for callers that must not block.
	// @default: 4096
	NoBlockReserve *int `hcl:"no_block_reserve,optional" json:"no_block_reserve,omitempty" yaml:"no_block_reserve,omitempty"`
}

// LoggingConfig selects log level, format and an optional syslog sink.
type LoggingConfig struct {
	// @default: "info"
	Level string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`

	// Emit JSON lines instead of console output.
	JSON bool `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`

	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty" yaml:"syslog,omitempty"`
}

// SyslogConfig mirrors logging.SyslogConfig for file-based configuration.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Host     string `hcl:"host,optional" json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `hcl:"port,optional" json:"port,omitempty" yaml:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty" yaml:"tag,omitempty"`
	Facility int    `hcl:"facility,optional" json:"facility,omitempty" yaml:"facility,omitempty"`
}

// DefaultConfig returns a fully populated default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.FlowTable == nil {
		c.FlowTable = &FlowTableConfig{}
	}
	if c.FlowTable.Buckets == 0 {
		c.FlowTable.Buckets = flowtable.DefaultBuckets
	}
	if c.FlowTable.BucketCapacity == 0 {
		c.FlowTable.BucketCapacity = flowtable.DefaultBucketCapacity
	}
	if c.FlowTable.Hash == "" {
		c.FlowTable.Hash = flowtable.HashReference
	}
	if c.FlowTable.NoBlockReserve == nil {
		reserve := flowtable.DefaultReserve
		c.FlowTable.NoBlockReserve = &reserve
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if s := c.Logging.Syslog; s != nil {
		def := logging.DefaultSyslogConfig()
		if s.Port == 0 {
			s.Port = def.Port
		}
		if s.Protocol == "" {
			s.Protocol = def.Protocol
		}
		if s.Tag == "" {
			s.Tag = def.Tag
		}
		if s.Facility == 0 {
			s.Facility = def.Facility
		}
	}
}

// Validate checks a config after defaults have been applied.
func (c *Config) Validate() error {
	ft := c.FlowTable
	if ft == nil {
		return errors.New(errors.KindValidation, "flow_table block is missing")
	}
	if ft.Buckets <= 0 {
		return errors.Errorf(errors.KindValidation, "flow_table.buckets must be positive, got %d", ft.Buckets)
	}
	if ft.BucketCapacity <= 0 {
		return errors.Errorf(errors.KindValidation, "flow_table.bucket_capacity must be positive, got %d", ft.BucketCapacity)
	}
	if ft.NoBlockReserve != nil && *ft.NoBlockReserve < 0 {
		return errors.Errorf(errors.KindValidation, "flow_table.no_block_reserve must not be negative, got %d", *ft.NoBlockReserve)
	}
	if _, err := flowtable.HashByName(ft.Hash); err != nil {
		return errors.Wrap(err, errors.KindValidation, "flow_table.hash")
	}

	if c.Logging != nil {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrap(err, errors.KindValidation, "logging.level")
		}
		if s := c.Logging.Syslog; s != nil && s.Enabled {
			if s.Host == "" {
				return errors.New(errors.KindValidation, "logging.syslog.host is required when syslog is enabled")
			}
			if s.Protocol != "udp" && s.Protocol != "tcp" {
				return errors.Errorf(errors.KindValidation, "logging.syslog.protocol must be udp or tcp, got %q", s.Protocol)
			}
		}
	}
	return nil
}

// TableConfig converts the flow_table block into a flowtable.Config.
func (c *FlowTableConfig) TableConfig() (flowtable.Config, error) {
	hash, err := flowtable.HashByName(c.Hash)
	if err != nil {
		return flowtable.Config{}, err
	}
	return flowtable.Config{
		Buckets:        c.Buckets,
		BucketCapacity: c.BucketCapacity,
		Hash:           hash,
	}, nil
}

// Reserve returns the no-block reserve size.
func (c *FlowTableConfig) Reserve() int {
	if c.NoBlockReserve == nil {
		return flowtable.DefaultReserve
	}
	return *c.NoBlockReserve
}

// NewLogger builds a logger from the logging block. When syslog is enabled
// records go to the syslog server instead of stderr.
func (c *LoggingConfig) NewLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	lc := logging.Config{
		Level:  level,
		Output: os.Stderr,
		JSON:   c.JSON,
	}
	if s := c.Syslog; s != nil && s.Enabled {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Enabled:  true,
			Host:     s.Host,
			Port:     s.Port,
			Protocol: s.Protocol,
			Tag:      s.Tag,
			Facility: s.Facility,
		})
		if err != nil {
			return nil, err
		}
		lc.Output = w
	}
	return logging.New(lc), nil
}
