package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildsync_update_total",
		Help: "Configuration updates by result",
	}, []string{"result"})

	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildsync_update_duration_seconds",
		Help:    "Duration of configuration updates",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	updatesInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "buildsync_update_inflight",
		Help: "Configuration updates currently running",
	})
)

var tracer = otel.Tracer("github.com/dshills/buildsync/internal/project/update")
