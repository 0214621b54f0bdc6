package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribble_archive_writes",
		Help: "Archived challenge images by outcome",
	}, []string{"status"})

	downloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribble_archive_downloads_total",
		Help: "Number of archive zip downloads",
	})

	zipBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribble_archive_zip_bytes",
		Help: "Size of the most recently generated archive zip in bytes",
	})
)
