package metric

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics holds the counters and gauges specific to reqgateway's
// request lifecycle, registered alongside the platform-level Metrics
// through the same MetricsRegistrar used for every other service metric.
type GatewayMetrics struct {
	RequestsTotal      *prometheus.CounterVec
	PendingRequests    prometheus.Gauge
	ResolverSubFetches *prometheus.CounterVec
	SweepEvictions     prometheus.Counter
	BrokerConnected    prometheus.Gauge
}

// RegisterGatewayMetrics builds and registers the gateway-specific metric
// set under the "gateway" service name.
func RegisterGatewayMetrics(registrar MetricsRegistrar) (*GatewayMetrics, error) {
	gm := &GatewayMetrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reqgateway",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests handled, by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reqgateway",
				Subsystem: "dispatch",
				Name:      "pending_requests",
				Help:      "Number of requests currently awaiting a broker reply",
			},
		),
		ResolverSubFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reqgateway",
				Subsystem: "resolver",
				Name:      "sub_fetches_total",
				Help:      "Total entity resolver sub-fetches issued, by outcome",
			},
			[]string{"outcome"},
		),
		SweepEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reqgateway",
				Subsystem: "terminator",
				Name:      "sweep_evictions_total",
				Help:      "Total pending requests evicted by the terminator sweep",
			},
		),
		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reqgateway",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),
	}

	if err := registrar.RegisterCounterVec("gateway", "requests_total", gm.RequestsTotal); err != nil {
		return nil, err
	}
	if err := registrar.RegisterGauge("gateway", "pending_requests", gm.PendingRequests); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounterVec("gateway", "sub_fetches_total", gm.ResolverSubFetches); err != nil {
		return nil, err
	}
	if err := registrar.RegisterCounter("gateway", "sweep_evictions_total", gm.SweepEvictions); err != nil {
		return nil, err
	}
	if err := registrar.RegisterGauge("gateway", "broker_connected", gm.BrokerConnected); err != nil {
		return nil, err
	}
	return gm, nil
}
