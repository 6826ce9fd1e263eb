package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCount(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			}
		}
		return total
	}
	return 0
}

func TestChatMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)

	m.ObserveMessage("bot1", "ok")
	m.ObserveMessage("bot1", "fallback")
	m.ObserveFallback("bot1", "no_intent")
	m.ObserveProcessLatency("bot1", 0.25)
	m.ObserveConfidence("bot1", 0.7)

	assert.Equal(t, 2.0, gatherCount(t, reg, "parley_chat_messages_total"))
	assert.Equal(t, 1.0, gatherCount(t, reg, "parley_chat_fallbacks_total"))
	assert.Equal(t, 1.0, gatherCount(t, reg, "parley_chat_process_latency_seconds"))
	assert.Equal(t, 1.0, gatherCount(t, reg, "parley_chat_intent_confidence"))
}

func TestTrainingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrainingMetrics(reg)

	m.ObserveRun("bot1", "completed")
	m.ObserveRun("bot1", "failed")
	m.ObserveDuration("bot1", 12.5)

	assert.Equal(t, 2.0, gatherCount(t, reg, "parley_training_runs_total"))
	assert.Equal(t, 1.0, gatherCount(t, reg, "parley_training_run_latency_seconds"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var chat *ChatMetrics
	var training *TrainingMetrics
	chat.ObserveMessage("bot1", "ok")
	chat.ObserveFallback("bot1", "error")
	chat.ObserveProcessLatency("bot1", 1)
	chat.ObserveConfidence("bot1", 0.5)
	training.ObserveRun("bot1", "completed")
	training.ObserveDuration("bot1", 1)
}
