package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Issued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribble_challenges_issued",
		Help: "The number of digit challenges issued",
	})

	Consumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribble_challenges_consumed",
		Help: "The number of challenges taken out of the store by a verification attempt",
	})
)
