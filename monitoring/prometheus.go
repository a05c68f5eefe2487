package monitoring

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ChunkResult string

var (
	ChunkIncluded       ChunkResult = "included"
	ChunkFailed         ChunkResult = "failed"
	ChunkTransportError ChunkResult = "transport_error"
	ChunkDryRun         ChunkResult = "dry_run"
)

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	runStartUnixSeconds prometheus.Gauge
	specVersion         prometheus.Gauge
	accountsScanned     *prometheus.CounterVec
	invariantFailures   *prometheus.CounterVec
	scanDuration        *prometheus.HistogramVec
	chunks              *prometheus.CounterVec
	chunkSize           prometheus.Histogram
	submitLatency       prometheus.Histogram
	feesPaid            prometheus.Counter
	panicCount          prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runStartUnixSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "balances_maintenance_run_start_timestamp_unix_seconds",
				Help: "Unix timestamp of the current maintenance run",
			},
		),
		specVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "balances_maintenance_runtime_spec_version",
				Help: "Runtime spec version reported by the node",
			},
		),
		accountsScanned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balances_maintenance_accounts_scanned_total",
				Help: "The total number of accounts visited, per scan",
			},
			[]string{"scan"},
		),
		invariantFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balances_maintenance_predicate_failures_total",
				Help: "The total number of accounts that failed the scan predicate",
			},
			[]string{"scan"},
		),
		scanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "balances_maintenance_scan_duration_seconds",
				Help:    "Duration in second of a full account scan",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"scan"},
		),
		chunks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "balances_maintenance_chunks_total",
				Help: "The total number of dispatched chunks by action and result",
			},
			[]string{"action", "result"},
		),
		chunkSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "balances_maintenance_chunk_size",
				Help:    "Number of targets per chunk",
				Buckets: prometheus.LinearBuckets(16, 16, 8),
			},
		),
		submitLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "balances_maintenance_submit_latency_seconds",
				Help: "Latency in second from submission until inclusion",
			},
		),
		feesPaid: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "balances_maintenance_fees_paid_planck_total",
				Help: "Fees paid for included extrinsics, in planck",
			},
		),
		panicCount: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "balances_maintenance_panic_total",
				Help: "The total number of recovered panics",
			},
		),
	}
}

func (m *Metrics) MarkRunStart(specVersion uint32) {
	if m == nil {
		return
	}
	m.runStartUnixSeconds.SetToCurrentTime()
	m.specVersion.Set(float64(specVersion))
}

func (m *Metrics) RecordScanned(scan string, failed bool) {
	if m == nil {
		return
	}
	m.accountsScanned.WithLabelValues(scan).Inc()
	if failed {
		m.invariantFailures.WithLabelValues(scan).Inc()
	}
}

func (m *Metrics) RecordScanDuration(scan string, d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.WithLabelValues(scan).Observe(d.Seconds())
}

func (m *Metrics) RecordChunk(action string, result ChunkResult, size int) {
	if m == nil {
		return
	}
	m.chunks.With(prometheus.Labels{"action": action, "result": string(result)}).Inc()
	m.chunkSize.Observe(float64(size))
}

func (m *Metrics) RecordSubmitLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d.Seconds())
}

func (m *Metrics) AddFee(planck *uint256.Int) {
	if m == nil || planck == nil {
		return
	}
	f, _ := new(big.Float).SetInt(planck.ToBig()).Float64()
	m.feesPaid.Add(f)
}

func (m *Metrics) IncreasePanicCount() {
	if m == nil {
		return
	}
	m.panicCount.Inc()
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, log *logx.Logger, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	log.Info("METRICS", "Registering prometheus metrics on ", addr)
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
