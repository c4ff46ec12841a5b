// Package metrics drží Prometheus metriky ingestoru a fleet-api.
//
// Každá služba si vytvoří vlastní registry (NewRegistry) a vystaví ji na /metrics.
// Nil *Ingest nebo *API je platný a nic neměří, testy tak metriky nepotřebují.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wiwik"

// NewRegistry vrátí registry s Go a process collectory.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler vystaví metriky z registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Ingest jsou metriky ingestion pipeline.
type Ingest struct {
	received      *prometheus.CounterVec // podle druhu topicu
	dropped       *prometheus.CounterVec // podle důvodu
	persisted     prometheus.Counter
	persistErrors prometheus.Counter
	unresolved    prometheus.Counter
	published     *prometheus.CounterVec // ok, error, timeout
	brokerUptime  prometheus.Gauge
}

// NewIngest vytvoří a zaregistruje metriky ingestoru.
func NewIngest(reg prometheus.Registerer) (*Ingest, error) {
	m := &Ingest{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_received_total",
			Help:      "Přijaté MQTT zprávy podle druhu topicu",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_dropped_total",
			Help:      "Zahozené zprávy podle důvodu",
		}, []string{"reason"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "measurements_persisted_total",
			Help:      "Uložená měření",
		}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "persist_errors_total",
			Help:      "Neúspěšné zápisy do databáze",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "unresolved_devices_total",
			Help:      "Měření ze zařízení bez přiřazeného vozidla",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "publishes_total",
			Help:      "Publikace na vehicles/... podle výsledku",
		}, []string{"status"}),
		brokerUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_uptime_seconds",
			Help:      "Uptime brokeru z $SYS/broker/uptime",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.received, m.dropped, m.persisted, m.persistErrors, m.unresolved, m.published, m.brokerUptime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Ingest) Received(kind string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(kind).Inc()
}

func (m *Ingest) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Persisted započítá výsledek zápisu měření.
func (m *Ingest) Persisted(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.persistErrors.Inc()
		return
	}
	m.persisted.Inc()
}

func (m *Ingest) Unresolved() {
	if m == nil {
		return
	}
	m.unresolved.Inc()
}

// Published započítá výsledek publikace: "ok", "error" nebo "timeout".
func (m *Ingest) Published(status string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(status).Inc()
}

func (m *Ingest) SetBrokerUptime(seconds float64) {
	if m == nil {
		return
	}
	m.brokerUptime.Set(seconds)
}
