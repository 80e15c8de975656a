// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the trawl configuration file.
//
// The file lives at ~/.trawl/trawl.yaml and is created with defaults on
// first run. Command-line flags override file values. The serve mode
// watches the file and hot-reloads the mining section; server and store
// changes require a restart.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/trawl/services/miner/beam"
)

// ErrInvalidConfig reports a configuration file that parsed but failed
// validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is the shared validator instance for config structs.
var validate = validator.New()

// TrawlConfig is the root of the configuration file.
type TrawlConfig struct {
	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging"`

	// Server configures the serve mode listener.
	Server ServerConfig `yaml:"server"`

	// Store configures the results store. Restart to apply changes.
	Store StoreConfig `yaml:"store"`

	// Telemetry selects trace and metric exporters.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Mining is the default mining configuration: the serve mode
	// applies it to requests that carry none, and the mine command
	// uses it as the flag baseline. Hot-reloaded by the serve mode.
	Mining beam.Options `yaml:"mining"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, or error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging when set. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

// ServerConfig configures the serve mode. Restart to apply changes.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// RateRPS is the per-client request rate. Zero disables limiting.
	RateRPS float64 `yaml:"rate_rps" validate:"gte=0"`

	// RateBurst is the per-client burst allowance.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	// ShutdownSeconds bounds the graceful drain on shutdown.
	ShutdownSeconds int `yaml:"shutdown_seconds" validate:"gte=0"`

	// MaxConcurrentRuns bounds simultaneous background searches.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" validate:"gte=0"`
}

// StoreConfig configures run document persistence.
type StoreConfig struct {
	// Dir is the BadgerDB directory. Supports ~ expansion.
	Dir string `yaml:"dir"`

	// InMemory keeps the store in memory, losing runs on restart.
	InMemory bool `yaml:"in_memory"`
}

// TelemetryConfig selects exporters for services/miner/telemetry.
type TelemetryConfig struct {
	// TraceExporter is otlp, stdout, or none.
	TraceExporter string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// MetricExporter is prometheus, stdout, or none.
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP trace receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() TrawlConfig {
	return TrawlConfig{
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.trawl/logs",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateRPS:         50,
			RateBurst:       100,
			ShutdownSeconds: 10,
		},
		Store: StoreConfig{
			Dir: "~/.trawl/store",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
		},
		Mining: *beam.DefaultOptions(),
	}
}

// Validate checks the struct tags and the mining section.
func (c *TrawlConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	mining := c.Mining.Resolved()
	if err := mining.Validate(); err != nil {
		return fmt.Errorf("%w: mining: %v", ErrInvalidConfig, err)
	}
	return nil
}
