// Copyright 2024 RelayGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config describes the configuration of the relaygate gateway.
package config

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaygate/relaygate/pkg/log"
	"github.com/relaygate/relaygate/pkg/private/serrors"
	"github.com/relaygate/relaygate/pkg/private/util"
	libconfig "github.com/relaygate/relaygate/private/config"
)

// Storage backend names.
const (
	BackendMemory = "memory"
	BackendEtcd   = "etcd"
)

var _ libconfig.Config = (*Config)(nil)

// Config is the gateway configuration.
type Config struct {
	General General    `toml:"general,omitempty"`
	Log     log.Config `toml:"log,omitempty"`
	Metrics Metrics    `toml:"metrics,omitempty"`
	API     API        `toml:"api,omitempty"`
	Picker  Picker     `toml:"picker,omitempty"`
	Storage Storage    `toml:"storage,omitempty"`
}

// InitDefaults initializes the default values for all parts of the config.
func (cfg *Config) InitDefaults() {
	libconfig.InitAll(
		&cfg.General,
		&cfg.Log,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Picker,
		&cfg.Storage,
	)
}

// Validate validates all parts of the config.
func (cfg *Config) Validate() error {
	return libconfig.ValidateAll(
		&cfg.General,
		&cfg.Log,
		&cfg.Metrics,
		&cfg.API,
		&cfg.Picker,
		&cfg.Storage,
	)
}

// Sample writes a commented sample config to dst.
func (cfg *Config) Sample(dst io.Writer) {
	libconfig.WriteSample(dst,
		&cfg.General,
		&cfg.Picker,
		&cfg.Storage,
		&cfg.Metrics,
		&cfg.API,
	)
}

// ConfigName returns the config block name.
func (cfg *Config) ConfigName() string {
	return "gateway"
}

// Logging returns the logging configuration, for the launcher.
func (cfg *Config) Logging() log.Config {
	return cfg.Log
}

// General holds the general gateway settings.
type General struct {
	libconfig.NoDefaulter
	// ID is the gateway element ID, used to distinguish instances in logs
	// and metrics.
	ID string `toml:"id,omitempty"`
}

// Validate checks that an element ID is set.
func (cfg *General) Validate() error {
	if cfg.ID == "" {
		return serrors.New("no element id specified")
	}
	return nil
}

func (cfg *General) Sample(dst io.Writer) {
	libconfig.WriteString(dst, generalSample)
}

func (cfg *General) ConfigName() string {
	return "general"
}

// Picker holds the candidate selection settings.
type Picker struct {
	libconfig.NoDefaulter
	libconfig.NoValidator
	// Verbose emits the full ranked candidate sequence on every selection,
	// at debug level.
	Verbose bool `toml:"verbose,omitempty"`
}

func (cfg *Picker) Sample(dst io.Writer) {
	libconfig.WriteString(dst, pickerSample)
}

func (cfg *Picker) ConfigName() string {
	return "picker"
}

// Storage selects and configures the quality store backend.
type Storage struct {
	// Backend is the store implementation, "memory" or "etcd".
	Backend string `toml:"backend,omitempty"`
	// Endpoints are the etcd cluster endpoints. Required for the etcd
	// backend.
	Endpoints []string `toml:"endpoints,omitempty"`
	// DialTimeout bounds the initial etcd connection attempt.
	DialTimeout util.DurWrap `toml:"dial_timeout,omitempty"`
	// Prefix is prepended to all store keys.
	Prefix string `toml:"prefix,omitempty"`
}

// InitDefaults defaults to the in-memory backend.
func (cfg *Storage) InitDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
}

// Validate checks the backend selection.
func (cfg *Storage) Validate() error {
	switch cfg.Backend {
	case BackendMemory:
		return nil
	case BackendEtcd:
		if len(cfg.Endpoints) == 0 {
			return serrors.New("etcd backend requires endpoints")
		}
		return nil
	default:
		return serrors.New("unknown storage backend", "backend", cfg.Backend)
	}
}

func (cfg *Storage) Sample(dst io.Writer) {
	libconfig.WriteString(dst, storageSample)
}

func (cfg *Storage) ConfigName() string {
	return "storage"
}

// Metrics holds the metrics endpoint settings.
type Metrics struct {
	libconfig.NoDefaulter
	libconfig.NoValidator
	// Prometheus is the address the prometheus exporter listens on. If
	// empty, metrics are not exported.
	Prometheus string `toml:"prometheus,omitempty"`
}

func (cfg *Metrics) Sample(dst io.Writer) {
	libconfig.WriteString(dst, metricsSample)
}

func (cfg *Metrics) ConfigName() string {
	return "metrics"
}

// ServePrometheus starts an HTTP server that exposes the metrics in
// prometheus format. It blocks until the context is cancelled or the
// server fails.
func (cfg *Metrics) ServePrometheus(ctx context.Context) error {
	if cfg.Prometheus == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Prometheus, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		defer log.HandlePanic()
		log.Info("Exposing prometheus metrics", "addr", cfg.Prometheus)
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return serrors.Wrap("serving prometheus metrics", err)
		}
		return nil
	case <-ctx.Done():
		return server.Close()
	}
}

// API holds the management API settings.
type API struct {
	libconfig.NoDefaulter
	libconfig.NoValidator
	// Addr is the address the management API listens on. If empty, the
	// API is not exposed.
	Addr string `toml:"addr,omitempty"`
}

func (cfg *API) Sample(dst io.Writer) {
	libconfig.WriteString(dst, apiSample)
}

func (cfg *API) ConfigName() string {
	return "api"
}
