package project

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// File event outcomes.
const (
	outcomeIgnored   = "ignored"
	outcomeRefreshed = "refreshed"
	outcomeUpdated   = "updated"
	outcomePrompted  = "prompted"
	outcomeDisabled  = "disabled"
	outcomeDropped   = "dropped"
	outcomeError     = "error"
)

var (
	fileEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "buildsync_file_events_total",
		Help: "File change events by kind and outcome",
	}, []string{"kind", "outcome"})

	initializeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "buildsync_initialize_duration_seconds",
		Help:    "Duration of project initialization",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
	})
)

var tracer = otel.Tracer("github.com/dshills/buildsync/internal/project")
