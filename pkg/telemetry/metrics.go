// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface every core component records against.
// Implementations must be safe for concurrent use.
type Recorder interface {
	RecordBusPublish(conversationKind string, recipients int)
	RecordBusDrop(agentID string)
	RecordRouteAttempt(outcome string, duration time.Duration)
	RecordTurn(outcome string, toolIterations int, duration time.Duration)
	RecordToolCall(toolName, outcome string, duration time.Duration)
	RecordLLMCall(outcome string, duration time.Duration)
	Handler() http.Handler
}

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	busPublishes *prometheus.CounterVec
	busDrops     *prometheus.CounterVec
	routeLatency *prometheus.HistogramVec
	turns        *prometheus.CounterVec
	turnLatency  prometheus.Histogram
	toolCalls    *prometheus.CounterVec
	toolLatency  *prometheus.HistogramVec
	llmCalls     *prometheus.CounterVec
	llmLatency   prometheus.Histogram
	registry     *prometheus.Registry
}

// NewMetrics builds a Metrics recorder registered against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		busPublishes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_bus_publish_total",
			Help: "Wakeups published to the message bus (one per recipient), by conversation kind.",
		}, []string{"conversation_kind"}),
		busDrops: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_bus_lagged_inbox_total",
			Help: "Wakeups dropped due to inbox backpressure, by agent.",
		}, []string{"agent_id"}),
		routeLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardroom_route_duration_seconds",
			Help:    "Router.route latency by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		turns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_turns_total",
			Help: "Agent Runtime turns, by outcome.",
		}, []string{"outcome"}),
		turnLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "boardroom_turn_duration_seconds",
			Help:    "Agent Runtime turn duration.",
			Buckets: prometheus.DefBuckets,
		}),
		toolCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_tool_calls_total",
			Help: "Tool Runtime invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boardroom_tool_duration_seconds",
			Help:    "Tool invocation latency by tool.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		llmCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "boardroom_llm_calls_total",
			Help: "LLM Gateway chat calls, by outcome.",
		}, []string{"outcome"}),
		llmLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "boardroom_llm_call_duration_seconds",
			Help:    "LLM Gateway chat call duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return m
}

func (m *Metrics) RecordBusPublish(conversationKind string, recipients int) {
	m.busPublishes.WithLabelValues(conversationKind).Add(float64(max(recipients, 0)))
}

func (m *Metrics) RecordBusDrop(agentID string) {
	m.busDrops.WithLabelValues(agentID).Inc()
}

func (m *Metrics) RecordRouteAttempt(outcome string, duration time.Duration) {
	m.routeLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) RecordTurn(outcome string, toolIterations int, duration time.Duration) {
	m.turns.WithLabelValues(outcome).Inc()
	m.turnLatency.Observe(duration.Seconds())
}

func (m *Metrics) RecordToolCall(toolName, outcome string, duration time.Duration) {
	m.toolCalls.WithLabelValues(toolName, outcome).Inc()
	m.toolLatency.WithLabelValues(toolName).Observe(duration.Seconds())
}

func (m *Metrics) RecordLLMCall(outcome string, duration time.Duration) {
	m.llmCalls.WithLabelValues(outcome).Inc()
	m.llmLatency.Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ Recorder = (*Metrics)(nil)
