package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_moderation_actions",
	Help: "Number of moderation state transitions applied",
}, []string{"action"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_moderation_action_errors",
	Help: "Number of manual moderation actions which failed",
}, []string{"action"})
