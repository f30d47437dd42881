// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"log/syslog"

	"grimm.is/flowtrack/internal/errors"
)

// SyslogConfig describes a remote syslog sink.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int // syslog facility number, 1 = user
}

// DefaultSyslogConfig returns a disabled UDP sink on the standard port.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      "flowtrack",
		Facility: 1,
	}
}

// NewSyslogWriter dials the configured syslog server. The returned writer can
// be used as Config.Output.
func NewSyslogWriter(cfg SyslogConfig) (*syslog.Writer, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.KindValidation, "syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "flowtrack"
	}

	priority := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	w, err := syslog.Dial(cfg.Protocol, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), priority, cfg.Tag)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to connect to syslog")
	}
	return w, nil
}
