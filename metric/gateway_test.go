package metric_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/reqgateway/metric"
)

func TestRegisterGatewayMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	gm, err := metric.RegisterGatewayMetrics(registry)
	require.NoError(t, err)
	require.NotNil(t, gm)

	gm.RequestsTotal.WithLabelValues("equipment", "ok").Inc()
	gm.PendingRequests.Set(3)
	gm.ResolverSubFetches.WithLabelValues("ok").Inc()
	gm.SweepEvictions.Inc()
	gm.BrokerConnected.Set(1)

	metrics, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)
}

func TestRegisterGatewayMetrics_RejectsDuplicateRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	_, err := metric.RegisterGatewayMetrics(registry)
	require.NoError(t, err)

	_, err = metric.RegisterGatewayMetrics(registry)
	assert.Error(t, err)
}
