package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCountOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	collectors := New(registry)

	collectors.ObservePoll("iheart", "new_play")
	collectors.ObservePoll("iheart", "new_play")
	collectors.ObservePoll("atime", OutcomeConflict)

	if got := testutil.ToFloat64(collectors.plays.WithLabelValues("iheart", "new_play")); got != 2 {
		t.Fatalf("expected 2 new plays, got %v", got)
	}
	if got := testutil.ToFloat64(collectors.plays.WithLabelValues("atime", OutcomeConflict)); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}

	collectors.ObservePass(3, 2*time.Second)
	if got := testutil.ToFloat64(collectors.pollStations); got != 3 {
		t.Fatalf("expected gauge 3, got %v", got)
	}

	collectors.ObserveRequest("/v1/stations", 200)
	collectors.ObserveRequest("/v1/stations", 404)
	collectors.ObserveRequest("/v1/stations", 503)
	if got := testutil.ToFloat64(collectors.requests.WithLabelValues("/v1/stations", "4xx")); got != 1 {
		t.Fatalf("expected one 4xx, got %v", got)
	}

	count, err := testutil.GatherAndCount(registry, "radiojournal_poll_results_total", "radiojournal_http_requests_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 series, got %d", count)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var collectors *Collectors
	collectors.ObservePoll("coolism", OutcomeSkipped)
	collectors.ObserveFetch("coolism", time.Second)
	collectors.ObservePass(1, time.Second)
	collectors.ObserveRequest("/healthz", 200)
}
