package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EndpointMediaID     = "media_id"
	EndpointPlaybackKey = "playback_key"
	EndpointSearch      = "search"
)

type Metrics struct {
	ResolveTotal    *prometheus.CounterVec
	SearchTotal     *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qqres_resolve_total",
				Help: "Total number of resolve calls by outcome",
			},
			[]string{"outcome"},
		),
		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qqres_search_total",
				Help: "Total number of search calls by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qqres_upstream_request_duration_seconds",
				Help:    "Time spent waiting for QQ Music endpoints",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	if nil != reg {
		reg.MustRegister(m.ResolveTotal, m.SearchTotal, m.UpstreamLatency)
	}
	return m
}

func (m *Metrics) ObserveResolve(outcome string) {
	if nil == m {
		return
	}
	m.ResolveTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSearch(outcome string) {
	if nil == m {
		return
	}
	m.SearchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstream(endpoint string, d time.Duration) {
	if nil == m {
		return
	}
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}
