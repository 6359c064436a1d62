package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "castmod_event_duration_sec",
	Help: "Total duration of event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var castDuplicateCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "castmod_cast_duplicates",
	Help: "Number of repeat cast deliveries answered from the dedupe cache",
})

var evaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "castmod_evaluation_duration_sec",
	Help: "Duration of rule group evaluation",
}, []string{"kind"})

var evaluationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_evaluations",
	Help: "Number of rule group evaluations, by outcome",
}, []string{"kind", "result"})

var checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "castmod_check_duration_sec",
	Help: "Duration of individual rule checks",
}, []string{"rule"})

var checkFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_check_failures",
	Help: "Number of rule checks which errored, timed out, or panicked",
}, []string{"rule", "kind"})
