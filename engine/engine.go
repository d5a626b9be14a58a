// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine opens an accelerator and its shared execution queue.
//
// Most programs use Default, configured from GPUBCAST_* environment
// variables. Open builds an engine from an explicit configuration:
//
//	cfg, err := engine.LoadConfig("gpubcast.yaml")
//	eng, err := engine.Open(cfg)
//	defer eng.Close()
package engine

import (
	"github.com/born-ml/gpubcast/internal/config"
	"github.com/born-ml/gpubcast/internal/engine"
	"github.com/sirupsen/logrus"
)

// Engine is an open accelerator with its shared queue.
type Engine = engine.Engine

// Stats counts engine activity.
type Stats = engine.Stats

// Config selects and tunes the accelerator.
type Config = config.Config

// Option configures Open.
type Option = engine.Option

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a YAML file and applies environment overrides.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// Open opens an engine for cfg.
func Open(cfg Config, opts ...Option) (*Engine, error) { return engine.Open(cfg, opts...) }

// Default returns the process-wide engine, opening it on first use.
func Default() (*Engine, error) { return engine.Default() }

// WithLogger routes engine logs to l.
func WithLogger(l logrus.FieldLogger) Option { return engine.WithLogger(l) }
