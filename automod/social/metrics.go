package social

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var socialAPIDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "castmod_social_api_duration_sec",
	Help:    "Duration of social network API requests",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"path"})

var socialAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_social_api_count",
	Help: "Number of social network API requests, by status",
}, []string{"path", "status"})
