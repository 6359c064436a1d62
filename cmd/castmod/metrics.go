package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("castmod")

var eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_events_received",
	Help: "Number of inbound member request and cast events",
}, []string{"type"})

var eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_events_rejected",
	Help: "Number of inbound events which did not pass channel rules",
}, []string{"type"})

var manualActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_manual_actions",
	Help: "Number of manual moderation action requests, by action and outcome",
}, []string{"action", "status"})

var cooldownsSwept = promauto.NewCounter(prometheus.CounterOpts{
	Name: "castmod_cooldowns_swept",
	Help: "Number of expired cooldowns ended by the sweeper",
})
