// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the OrthoBot collectors.
type Metrics struct {
	chatRequests     *prometheus.CounterVec
	llmDuration      prometheus.Histogram
	knowledgeLookups *prometheus.CounterVec
	voiceCallsEnded  prometheus.Counter
	activeVoiceCalls prometheus.Gauge
	sweepRemoved     *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		chatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orthobot_chat_requests_total",
			Help: "Chat messages handled, by channel and answer source.",
		}, []string{"channel", "source"}),
		llmDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "orthobot_llm_request_duration_seconds",
			Help:    "Latency of LLM completion calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		knowledgeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orthobot_knowledge_lookups_total",
			Help: "Knowledge lookups, by the path that answered.",
		}, []string{"kind"}),
		voiceCallsEnded: f.NewCounter(prometheus.CounterOpts{
			Name: "orthobot_voice_calls_ended_total",
			Help: "Voice calls ended through the API.",
		}),
		activeVoiceCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "orthobot_voice_sessions_active",
			Help: "Voice sessions currently marked active.",
		}),
		sweepRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orthobot_sweep_removed_total",
			Help: "Entries removed by the periodic sweeper, by target.",
		}, []string{"target"}),
	}
}

// ChatRequest counts one handled message.
func (m *Metrics) ChatRequest(channel, source string) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(channel, source).Inc()
}

// ObserveLLM records one completion call.
func (m *Metrics) ObserveLLM(d time.Duration) {
	if m == nil {
		return
	}
	m.llmDuration.Observe(d.Seconds())
}

// KnowledgeLookup counts one router decision.
func (m *Metrics) KnowledgeLookup(kind string) {
	if m == nil {
		return
	}
	m.knowledgeLookups.WithLabelValues(kind).Inc()
}

// VoiceCallEnded counts one ended call.
func (m *Metrics) VoiceCallEnded() {
	if m == nil {
		return
	}
	m.voiceCallsEnded.Inc()
}

// SetActiveVoiceCalls publishes the active session count.
func (m *Metrics) SetActiveVoiceCalls(n int) {
	if m == nil {
		return
	}
	m.activeVoiceCalls.Set(float64(n))
}

// SweepRemoved adds n removals for target ("voice", "cache", "ratelimit").
func (m *Metrics) SweepRemoved(target string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepRemoved.WithLabelValues(target).Add(float64(n))
}
