// Package metrics holds the prometheus collectors of the poller and the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels beyond the journal's own outcome kinds.
const (
	OutcomeFetchFailed = "fetch_failed"
	OutcomeConflict    = "conflict"
	OutcomeLogFailed   = "log_failed"
	OutcomeSkipped     = "skipped"
)

// Collectors groups every metric the service exports.
type Collectors struct {
	plays         *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pollDuration  prometheus.Histogram
	pollStations  prometheus.Gauge
	requests      *prometheus.CounterVec
}

// New builds the collectors and registers them with registerer. A nil
// registerer leaves them unregistered.
func New(registerer prometheus.Registerer) *Collectors {
	collectors := &Collectors{
		plays: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radiojournal_poll_results_total", Help: "Station poll results by outcome"},
			[]string{"fetcher", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radiojournal_fetch_duration_seconds",
				Help:    "Time spent asking a now playing source",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"fetcher"},
		),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "radiojournal_poll_duration_seconds",
				Help:    "Duration of one pass over every station",
				Buckets: prometheus.DefBuckets,
			},
		),
		pollStations: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "radiojournal_poll_stations", Help: "Stations with a fetcher in the last pass"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radiojournal_http_requests_total", Help: "API requests by route and status"},
			[]string{"route", "status"},
		),
	}
	if registerer != nil {
		registerer.MustRegister(
			collectors.plays,
			collectors.fetchDuration,
			collectors.pollDuration,
			collectors.pollStations,
			collectors.requests,
		)
	}
	return collectors
}

// ObservePoll records the outcome of one station in a pass.
func (c *Collectors) ObservePoll(fetcher, outcome string) {
	if c == nil {
		return
	}
	c.plays.WithLabelValues(fetcher, outcome).Inc()
}

// ObserveFetch records how long a fetcher call took.
func (c *Collectors) ObserveFetch(fetcher string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.fetchDuration.WithLabelValues(fetcher).Observe(elapsed.Seconds())
}

// ObservePass records one complete pass over stations.
func (c *Collectors) ObservePass(stations int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.pollStations.Set(float64(stations))
	c.pollDuration.Observe(elapsed.Seconds())
}

// ObserveRequest counts an API request.
func (c *Collectors) ObserveRequest(route string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
