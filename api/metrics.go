package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend responses seen by the request pipeline.
type Metrics struct {
	ResponsesTotal    *prometheus.CounterVec
	UnauthorizedTotal prometheus.Counter
	TransportErrors   prometheus.Counter
}

// NewMetrics creates the pipeline metrics and registers them when registerer is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auth_client",
				Name:      "api_responses_total",
				Help:      "Backend responses by method and status code",
			},
			[]string{"method", "code"},
		),
		UnauthorizedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "auth_client",
				Name:      "api_unauthorized_total",
				Help:      "Backend responses with status 401",
			},
		),
		TransportErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "auth_client",
				Name:      "api_transport_errors_total",
				Help:      "Backend calls that failed before a response was received",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(m.ResponsesTotal, m.UnauthorizedTotal, m.TransportErrors)
	}
	return m
}

func (m *Metrics) observe(method string, code int) {
	if m == nil {
		return
	}
	m.ResponsesTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) transportError() {
	if m == nil {
		return
	}
	m.TransportErrors.Inc()
}
