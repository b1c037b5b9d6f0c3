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

// Package prom contains utility functions and shared label values for
// prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the metric namespace used by all relaygate services.
const Namespace = "relaygate"

// Common label names.
const (
	// LabelResult is the label for result classifications.
	LabelResult = "result"
	// LabelOperation is the label for the name of an executed operation.
	LabelOperation = "op"
	// LabelChain is the label for the blockchain identifier.
	LabelChain = "chain"
	// LabelFlow is the label for the selection flow (application or node).
	LabelFlow = "flow"
)

// Common result values.
const (
	// Success is no error.
	Success = "ok_success"
	// ErrStore is used for counter store related errors.
	ErrStore = "err_store"
	// ErrDecode is used when a stored record cannot be decoded.
	ErrDecode = "err_decode"
	// ErrInternal is an internal error.
	ErrInternal = "err_internal"
	// ErrInvalidReq is an invalid request.
	ErrInvalidReq = "err_invalid_request"
	// ErrNotClassified is an error that is not further classified.
	ErrNotClassified = "err_not_classified"
)

// DefaultLatencyBuckets 10ms, 20ms, 40ms, ... 5.12s, 10.24s.
var DefaultLatencyBuckets = []float64{0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64,
	1.28, 2.56, 5.12, 10.24}

// ExportElementID exports the element ID as configured in the config file.
func ExportElementID(id string) {
	promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "elem_id",
			Help:      "The element ID from the config file",
		},
		[]string{"cfg"},
	).WithLabelValues(id).Set(1)
}

// SafeRegister registers c and returns the registered collector. If c was
// already registered the already registered collector is returned. In case
// of any other error this method panics (as MustRegister).
func SafeRegister(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// ErrToMetricLabel classifies the error into a metric label.
func ErrToMetricLabel(err error) string {
	switch {
	case err == nil:
		return Success
	default:
		return ErrNotClassified
	}
}
