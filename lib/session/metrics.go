package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var accessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scribble_access_checks",
	Help: "Access checks by result",
}, []string{"result"})
