package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the message-processing
// pipeline.
type ChatMetrics struct {
	messagesTotal    *prometheus.CounterVec
	fallbacksTotal   *prometheus.CounterVec
	processLatency   *prometheus.HistogramVec
	intentConfidence *prometheus.HistogramVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total processed messages",
		}, []string{"bot_id", "outcome"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "fallbacks_total",
			Help:      "Messages answered with the default or apology response",
		}, []string{"bot_id", "reason"}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "process_latency_seconds",
			Help:      "Latency of ProcessMessage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"bot_id"}),
		intentConfidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "intent_confidence",
			Help:      "Ensemble confidence of intent predictions",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"bot_id"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.fallbacksTotal, m.processLatency, m.intentConfidence)
	return m
}

func (m *ChatMetrics) ObserveMessage(botID, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(botID, outcome).Inc()
}

func (m *ChatMetrics) ObserveFallback(botID, reason string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(botID, reason).Inc()
}

func (m *ChatMetrics) ObserveProcessLatency(botID string, seconds float64) {
	if m == nil {
		return
	}
	m.processLatency.WithLabelValues(botID).Observe(seconds)
}

func (m *ChatMetrics) ObserveConfidence(botID string, confidence float64) {
	if m == nil {
		return
	}
	m.intentConfidence.WithLabelValues(botID).Observe(confidence)
}

// TrainingMetrics exposes counters/histograms for training runs.
type TrainingMetrics struct {
	runsTotal       *prometheus.CounterVec
	trainingLatency *prometheus.HistogramVec
}

func NewTrainingMetrics(reg prometheus.Registerer) *TrainingMetrics {
	m := &TrainingMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "training",
			Name:      "runs_total",
			Help:      "Total training runs",
		}, []string{"bot_id", "status"}),
		trainingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "training",
			Name:      "run_latency_seconds",
			Help:      "Wall-clock duration of training runs",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"bot_id"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.trainingLatency)
	return m
}

func (m *TrainingMetrics) ObserveRun(botID, status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(botID, status).Inc()
}

func (m *TrainingMetrics) ObserveDuration(botID string, seconds float64) {
	if m == nil {
		return
	}
	m.trainingLatency.WithLabelValues(botID).Observe(seconds)
}
