package trainer

import "github.com/prometheus/client_golang/prometheus"

var (
	metricJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunerd",
			Subsystem: "training",
			Name:      "jobs_total",
			Help:      "Total training jobs by outcome",
		},
		[]string{"outcome"},
	)

	metricActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tunerd",
			Subsystem: "training",
			Name:      "active",
			Help:      "Whether a training job is currently live (0 or 1)",
		},
	)

	metricSteps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tunerd",
			Subsystem: "training",
			Name:      "steps_total",
			Help:      "Total optimizer steps reported by training backends",
		},
	)

	metricLastLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tunerd",
			Subsystem: "training",
			Name:      "last_loss",
			Help:      "Most recently reported training loss",
		},
	)
)

func init() {
	prometheus.MustRegister(metricJobsTotal, metricActive, metricSteps, metricLastLoss)
}
