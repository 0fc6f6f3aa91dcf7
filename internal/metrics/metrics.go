package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	drains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "drains_total",
			Help:      "Queue drain passes started.",
		},
	)

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "mutations_total",
			Help:      "Processed mutations by outcome.",
		},
		[]string{"outcome"},
	)

	syncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitesync",
			Name:      "sync_passes_total",
			Help:      "Sync passes by trigger source.",
		},
		[]string{"trigger"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sitesync",
			Name:      "queue_depth",
			Help:      "Queued mutations at the last drain snapshot.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(drains, mutations, syncPasses, queueDepth)
	})
}

// IncDrain counts a started drain pass.
func IncDrain() {
	drains.Inc()
}

// IncMutation counts one processed mutation with its outcome label
// (succeeded, terminal, retried, deferred, exhausted).
func IncMutation(outcome string) {
	mutations.WithLabelValues(outcome).Inc()
}

// IncSyncPass counts an executed sync pass for a trigger source.
func IncSyncPass(trigger string) {
	syncPasses.WithLabelValues(trigger).Inc()
}

// SetQueueDepth records the queue size observed by the last snapshot.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
