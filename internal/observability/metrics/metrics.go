package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the booking
// conversation flows. Methods are nil-safe so wiring metrics stays optional.
type ConversationMetrics struct {
	inboundTotal       *prometheus.CounterVec
	turnsTotal         *prometheus.CounterVec
	functionCallsTotal *prometheus.CounterVec
	modelTokensTotal   *prometheus.CounterVec
	outboundTotal      *prometheus.CounterVec
	turnLatency        *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound gateway webhooks",
		}, []string{"event_type", "status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total orchestrated conversation turns",
		}, []string{"channel", "outcome"}),
		functionCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "function_calls_total",
			Help:      "Total model-issued function calls executed",
		}, []string{"function", "success"}),
		modelTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "model_tokens_total",
			Help:      "Total model tokens consumed",
		}, []string{"direction"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "outbound_total",
			Help:      "Total outbound gateway sends",
		}, []string{"status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicai",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one orchestrated turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal,
		m.turnsTotal,
		m.functionCallsTotal,
		m.modelTokensTotal,
		m.outboundTotal,
		m.turnLatency,
	)
	return m
}

func (m *ConversationMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *ConversationMetrics) ObserveTurn(channel, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *ConversationMetrics) ObserveFunctionCall(function string, success bool) {
	if m == nil {
		return
	}
	label := "false"
	if success {
		label = "true"
	}
	m.functionCallsTotal.WithLabelValues(function, label).Inc()
}

func (m *ConversationMetrics) ObserveTokens(input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.modelTokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		m.modelTokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

func (m *ConversationMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveTurnLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(channel).Observe(seconds)
}
