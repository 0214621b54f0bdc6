package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribble_classification_duration_seconds",
		Help:    "Time taken by the digit classifier backend",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"backend"})

	classificationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribble_classification_errors",
		Help: "Classifier calls that failed, by backend and failure kind",
	}, []string{"backend", "kind"})
)
