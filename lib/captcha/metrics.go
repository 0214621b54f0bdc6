package captcha

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribble_challenges_validated",
		Help: "The number of challenges passed",
	})

	failedValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribble_failed_validations",
		Help: "The number of verification attempts that did not pass, by reason",
	}, []string{"reason"})
)
