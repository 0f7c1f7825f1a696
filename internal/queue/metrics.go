package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nlud",
			Subsystem: "training",
			Name:      "sessions_total",
			Help:      "Training session transitions by resulting status",
		},
		[]string{"status"},
	)

	trainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nlud",
			Subsystem: "training",
			Name:      "duration_seconds",
			Help:      "Wall time of finished training runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nlud",
			Subsystem: "training",
			Name:      "queue_depth",
			Help:      "Sessions waiting for a worker",
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nlud",
			Subsystem: "training",
			Name:      "inflight",
			Help:      "Sessions currently executing",
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsTotal, trainingDuration, queueDepth, inflight)
}
