package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	calls          *prometheus.CounterVec
	callLatency    *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	openOperations prometheus.Gauge
	totalAssets    prometheus.Gauge
	totalSupply    prometheus.Gauge
	queueLength    prometheus.Gauge
	events         *prometheus.CounterVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault collectors, registering them on first use.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Name:      "calls_total",
				Help:      "Top-level vault calls by method and outcome.",
			}, []string{"method", "outcome"}),
			callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vault",
				Name:      "call_duration_seconds",
				Help:      "Latency of top-level vault calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Name:      "operations_total",
				Help:      "Resolved asynchronous transfers by kind and outcome.",
			}, []string{"kind", "outcome"}),
			openOperations: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Name:      "open_operations",
				Help:      "Dispatched transfers awaiting their outcome.",
			}),
			totalAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Name:      "total_assets",
				Help:      "Assets immediately available to the vault.",
			}),
			totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Name:      "share_supply",
				Help:      "Outstanding vault shares.",
			}),
			queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Name:      "redemption_queue_length",
				Help:      "Redemptions waiting for liquidity.",
			}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Name:      "events_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			vaultRegistry.calls,
			vaultRegistry.callLatency,
			vaultRegistry.operations,
			vaultRegistry.openOperations,
			vaultRegistry.totalAssets,
			vaultRegistry.totalSupply,
			vaultRegistry.queueLength,
			vaultRegistry.events,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveCall(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.callLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *VaultMetrics) ObserveOperation(kind, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, outcome).Inc()
}

func (m *VaultMetrics) ObserveEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// SetState publishes the latest accounting snapshot.
func (m *VaultMetrics) SetState(totalAssets, totalSupply *big.Int, queueLength uint64, openOperations int) {
	if m == nil {
		return
	}
	m.totalAssets.Set(bigToFloat(totalAssets))
	m.totalSupply.Set(bigToFloat(totalSupply))
	m.queueLength.Set(float64(queueLength))
	m.openOperations.Set(float64(openOperations))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
