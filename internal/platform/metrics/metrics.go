// Package metrics holds process-level collectors: proxy health and run
// progress, registered next to the Go runtime collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	ProxyUp       prometheus.Gauge
	RunsStarted   prometheus.Counter
	PersonsLoaded prometheus.Gauge
}

// New creates a dedicated registry so tests and repeated runs never collide
// on the default one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		ProxyUp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "innsearch_proxy_up",
			Help: "1 while the anonymity session is acquired",
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "innsearch_runs_started_total",
			Help: "Total number of batch runs started",
		}),
		PersonsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "innsearch_persons_loaded",
			Help: "Persons read from the input in the current run",
		}),
	}
}

func (m *Metrics) SetProxyUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.ProxyUp.Set(1)
		return
	}
	m.ProxyUp.Set(0)
}

func (m *Metrics) IncrementRunsStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

func (m *Metrics) SetPersonsLoaded(n int) {
	if m == nil {
		return
	}
	m.PersonsLoaded.Set(float64(n))
}
