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

package cherry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/relaygate/relaygate/pkg/private/prom"
)

// These are the metrics exposed by the picker.
var (
	SelectionsTotalMeta = MetricMeta{
		Name:   "gateway_cherry_selections_total",
		Help:   "Total number of candidate selections performed.",
		Labels: []string{prom.LabelFlow, prom.LabelChain, prom.LabelResult},
	}
	FallbackDrawsTotalMeta = MetricMeta{
		Name:   "gateway_cherry_fallback_draws_total",
		Help:   "Total number of selections that fell back to the unweighted candidate list.",
		Labels: []string{prom.LabelFlow, prom.LabelChain},
	}
	ShelvedCandidatesTotalMeta = MetricMeta{
		Name:   "gateway_cherry_shelved_candidates_total",
		Help:   "Total number of candidates excluded for exceeding the failure quota.",
		Labels: []string{prom.LabelFlow, prom.LabelChain},
	}
	StoreOpsTotalMeta = MetricMeta{
		Name:   "gateway_cherry_store_ops_total",
		Help:   "Total number of quality store operations.",
		Labels: []string{prom.LabelOperation, prom.LabelResult},
	}
	OutcomesTotalMeta = MetricMeta{
		Name:   "gateway_cherry_outcomes_total",
		Help:   "Total number of relay outcomes folded into the quality counters.",
		Labels: []string{prom.LabelChain, "code"},
	}
	OutcomeLatencyMeta = MetricMeta{
		Name:   "gateway_cherry_outcome_latency_seconds",
		Help:   "Elapsed time of successful relays as reported to the picker.",
		Labels: []string{prom.LabelChain},
	}
)

// MetricMeta describes a single metric.
type MetricMeta struct {
	Name   string
	Help   string
	Labels []string
}

func (mm *MetricMeta) NewCounterVec() *prometheus.CounterVec {
	return promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: mm.Name,
			Help: mm.Help,
		},
		mm.Labels,
	)
}

func (mm *MetricMeta) NewHistogramVec(buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    mm.Name,
			Help:    mm.Help,
			Buckets: buckets,
		},
		mm.Labels,
	)
}

// Metrics can be used to inject metrics into the picker. Each field is
// optional; nil fields are not reported.
type Metrics struct {
	SelectionsTotal        *prometheus.CounterVec
	FallbackDrawsTotal     *prometheus.CounterVec
	ShelvedCandidatesTotal *prometheus.CounterVec
	StoreOpsTotal          *prometheus.CounterVec
	OutcomesTotal          *prometheus.CounterVec
	OutcomeLatency         *prometheus.HistogramVec
}

// NewMetrics creates the metrics for the picker, registered on the
// default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		SelectionsTotal:        SelectionsTotalMeta.NewCounterVec(),
		FallbackDrawsTotal:     FallbackDrawsTotalMeta.NewCounterVec(),
		ShelvedCandidatesTotal: ShelvedCandidatesTotalMeta.NewCounterVec(),
		StoreOpsTotal:          StoreOpsTotalMeta.NewCounterVec(),
		OutcomesTotal:          OutcomesTotalMeta.NewCounterVec(),
		OutcomeLatency:         OutcomeLatencyMeta.NewHistogramVec(prom.DefaultLatencyBuckets),
	}
}

func (m *Metrics) selection(flow, chain, result string) {
	if m == nil || m.SelectionsTotal == nil {
		return
	}
	m.SelectionsTotal.WithLabelValues(flow, chain, result).Inc()
}

func (m *Metrics) fallback(flow, chain string) {
	if m == nil || m.FallbackDrawsTotal == nil {
		return
	}
	m.FallbackDrawsTotal.WithLabelValues(flow, chain).Inc()
}

func (m *Metrics) shelved(flow, chain string, count int) {
	if m == nil || m.ShelvedCandidatesTotal == nil || count == 0 {
		return
	}
	m.ShelvedCandidatesTotal.WithLabelValues(flow, chain).Add(float64(count))
}

func (m *Metrics) storeOp(op string, err error) {
	if m == nil || m.StoreOpsTotal == nil {
		return
	}
	result := prom.Success
	if err != nil {
		result = prom.ErrStore
	}
	m.StoreOpsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) outcome(chain string, code int, elapsed float64, success bool) {
	if m == nil {
		return
	}
	if m.OutcomesTotal != nil {
		m.OutcomesTotal.WithLabelValues(chain, codeClass(code)).Inc()
	}
	if m.OutcomeLatency != nil && success {
		m.OutcomeLatency.WithLabelValues(chain).Observe(elapsed)
	}
}

func codeClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
