// Package metrics exposes shared-state's Prometheus metrics endpoint.
// This is ambient observability scaffolding, not a spec.md feature, so
// it is carried independently of any Non-goal (SPEC_FULL.md §6).
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds the registry and the gauges/counters the orchestrator
// updates as it runs its accept/sync/bleach loops.
type Metrics struct {
	log      *logrus.Logger
	registry *prometheus.Registry

	peers         prometheus.Gauge
	syncRounds    prometheus.Counter
	mergeChanges  prometheus.Counter
	rttSeconds    prometheus.Histogram
	bleachRemoved prometheus.Counter
}

// New creates and registers shared-state's Prometheus collectors.
func New(log *logrus.Logger) *Metrics {
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := prometheus.NewRegistry()

	m := &Metrics{log: log, registry: reg}
	m.peers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shared_state_peers",
		Help: "Number of candidate peers returned by the sync loop's most recent discovery.",
	})
	m.syncRounds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shared_state_sync_rounds_total",
		Help: "Total number of completed client-side sync sessions.",
	})
	m.mergeChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shared_state_merge_changes_total",
		Help: "Total number of significant changes applied by merge.",
	})
	m.rttSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shared_state_rtt_seconds",
		Help:    "Measured round-trip time of completed sync sessions.",
		Buckets: prometheus.DefBuckets,
	})
	m.bleachRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shared_state_bleach_removed_total",
		Help: "Total number of entries removed by bleach across all types.",
	})

	reg.MustRegister(m.peers, m.syncRounds, m.mergeChanges, m.rttSeconds, m.bleachRemoved)
	return m
}

// ObserveSyncRound records one completed client-side sync session.
func (m *Metrics) ObserveSyncRound(rttSeconds float64, mergeChanges int) {
	m.syncRounds.Inc()
	m.mergeChanges.Add(float64(mergeChanges))
	m.rttSeconds.Observe(rttSeconds)
}

// ObserveBleach records entries removed by one bleach pass.
func (m *Metrics) ObserveBleach(removed int) {
	m.bleachRemoved.Add(float64(removed))
}

// SetPeerCount sets the peer gauge; the sync loop passes the number of
// candidates its discovery returned.
func (m *Metrics) SetPeerCount(n int) {
	m.peers.Set(float64(n))
}

// Serve starts an HTTP server exposing /metrics on addr, returning
// once ctx is cancelled or the server fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
