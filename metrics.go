package lime2node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a Prometheus registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type RelayMetrics struct {
	Dispatched  *prometheus.CounterVec // labels: command
	Outcomes    *prometheus.CounterVec // labels: command, state
	RateLimited prometheus.Counter
	Running     prometheus.Gauge
	Clients     prometheus.Gauge
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lime2node_relay_dispatched_total",
			Help: "Backend operations spawned by command.",
		}, []string{"command"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lime2node_relay_outcomes_total",
			Help: "Backend operation outcomes by command and state.",
		}, []string{"command", "state"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lime2node_relay_rate_limited_total",
			Help: "Commands refused by the rate limiter.",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lime2node_relay_running_operations",
			Help: "Backend operations currently running.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lime2node_relay_websocket_clients",
			Help: "Connected WebSocket clients.",
		}),
	}
	reg.MustRegister(m.Dispatched, m.Outcomes, m.RateLimited, m.Running, m.Clients)
	return m
}
