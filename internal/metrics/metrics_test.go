package metrics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter(MessagesSent, nil, "Messages published")
	registry.IncrementCounter(MessagesSent, map[string]string{"kind": "chat"}, "Messages published")
	registry.IncrementCounter(MessagesSent, map[string]string{"kind": "chat"}, "Messages published")

	summary := registry.GetAllMetrics()
	require.Contains(t, summary.Counters, MessagesSent)
	assert.Equal(t, 1.0, summary.Counters[MessagesSent].Value)
	require.Contains(t, summary.Counters, MessagesSent+"_kind:chat")
	assert.Equal(t, 2.0, summary.Counters[MessagesSent+"_kind:chat"].Value)
	assert.Equal(t, 3.0, registry.CounterValue(MessagesSent))
}

func TestRegistry_AddToCounter(t *testing.T) {
	registry := NewRegistry()

	registry.AddToCounter(ReconnectAttempts, 2.5, nil, "")
	registry.AddToCounter(ReconnectAttempts, 1.5, nil, "")

	assert.Equal(t, 4.0, registry.CounterValue(ReconnectAttempts))
	assert.Zero(t, registry.CounterValue("absent"))
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	registry.RecordTimer(ConnectDuration, 100*time.Millisecond, nil, "")
	registry.RecordTimer(ConnectDuration, 300*time.Millisecond, nil, "")

	timer := registry.GetAllMetrics().Timers[ConnectDuration]
	require.NotNil(t, timer)
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 100.0, timer.Min, 0.001)
	assert.InDelta(t, 300.0, timer.Max, 0.001)
	assert.InDelta(t, 200.0, timer.Average, 0.001)
}

func TestRegistry_PercentileCalculation(t *testing.T) {
	registry := NewRegistry()

	for i := 10; i >= 1; i-- {
		registry.RecordTimer(HTTPRequestDuration, time.Duration(i*10)*time.Millisecond, nil, "")
	}

	timer := registry.GetAllMetrics().Timers[HTTPRequestDuration]
	require.NotNil(t, timer)
	assert.InDelta(t, 100.0, timer.P95, 0.001)
	assert.GreaterOrEqual(t, timer.P99, timer.P95)
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()

	registry.SetGauge(ConnectionState, 2, nil, "")
	registry.SetGauge(ConnectionState, 3, nil, "")

	value, ok := registry.GaugeValue(ConnectionState)
	require.True(t, ok)
	assert.Equal(t, 3.0, value)

	_, ok = registry.GaugeValue(StoreMessages)
	assert.False(t, ok)
}

func TestRegistry_MetricKeyIsStable(t *testing.T) {
	registry := NewRegistry()
	labels := map[string]string{"status": "200", "method": "GET", "path": "/api/state"}

	first := registry.metricKey(HTTPRequests, labels)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, registry.metricKey(HTTPRequests, labels))
	}
	assert.Equal(t, HTTPRequests+"_method:GET_path:/api/state_status:200", first)
	assert.Equal(t, HTTPRequests, registry.metricKey(HTTPRequests, nil))
}

func TestRegistry_SummaryIsACopy(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter(DecodeFailures, nil, "")

	summary := registry.GetAllMetrics()
	summary.Counters[DecodeFailures].Value = 99

	assert.Equal(t, 1.0, registry.CounterValue(DecodeFailures))
}

func TestRegistry_SummaryJSON(t *testing.T) {
	registry := NewRegistry()
	registry.IncrementCounter(MessagesReceived, nil, "")
	registry.SetGauge(StoreMessages, 4, nil, "")

	data, err := json.Marshal(registry.GetAllMetrics())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "counters")
	assert.Contains(t, decoded, "gauges")
	assert.Contains(t, decoded, "timers")
	assert.Contains(t, decoded, "uptime_ms")
}

func TestGlobalRegistry(t *testing.T) {
	IncrementCounter("global_test", nil, "")
	AddToCounter("global_add", 5.0, nil, "")
	RecordTimer("global_timer", 50*time.Millisecond, nil, "")
	SetGauge("global_gauge", 123.45, nil, "")

	summary := GetAllMetrics()
	assert.Contains(t, summary.Counters, "global_test")
	assert.Contains(t, summary.Counters, "global_add")
	assert.Contains(t, summary.Timers, "global_timer")
	assert.Contains(t, summary.Gauges, "global_gauge")
	assert.Same(t, globalRegistry, GetRegistry())
}

func TestCopyLabels(t *testing.T) {
	assert.Nil(t, copyLabels(nil))

	original := map[string]string{"kind": "chat"}
	copied := copyLabels(original)
	copied["extra"] = "x"

	assert.NotContains(t, original, "extra")
}
