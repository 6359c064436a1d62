package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "castmod_chain_rpc_duration_sec",
	Help:    "Duration of eth_call requests",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
}, []string{"chain"})

var rpcCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "castmod_chain_rpc_count",
	Help: "Number of eth_call requests, by outcome",
}, []string{"chain", "outcome"})
