package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordMessage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())

	m.RecordMessage(OutcomeLocal)
	m.RecordMessage(OutcomeLocal)
	m.RecordMessage(OutcomeForwarded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues(OutcomeLocal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues(OutcomeForwarded)))
}

func TestMetrics_DeliveryAndRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())

	m.RecordDeliveryFailure(ReasonQueueFull)
	m.RecordRouteLearned()
	m.RecordRouteLearned()
	m.SetConnections(3)
	m.SetServices(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveryFailuresTotal.WithLabelValues(ReasonQueueFull)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.routesLearnedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.services))
}

func TestMetrics_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second set against the same registerer is tolerated.
	other := New(reg)
	assert.NoError(t, other.Register())
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMessage(OutcomeLocal)
		m.RecordDeliveryFailure(ReasonClosed)
		m.RecordRouteLearned()
		m.SetConnections(1)
		m.SetServices(1)
		_ = m.Register()
	})
}
