package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RPCCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacedan_rpc_calls_total",
			Help: "Remote operations attempted, by operation",
		},
		[]string{"op"},
	)
	RPCFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacedan_rpc_failures_total",
			Help: "Remote operations that failed in transport, by operation",
		},
		[]string{"op"},
	)
	Rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacedan_optimistic_rollbacks_total",
			Help: "Optimistic updates rolled back after a failed mutation",
		},
		[]string{"feature"},
	)
	Unlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacedan_achievement_unlocks_total",
			Help: "New achievement unlocks",
		},
	)
	BalancePushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacedan_balance_pushes_total",
			Help: "Realtime balance updates applied to the cache",
		},
	)
	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spacedan_realtime_reconnects_total",
			Help: "Realtime connection re-establishments",
		},
	)
)

func init() {
	prometheus.MustRegister(RPCCalls)
	prometheus.MustRegister(RPCFailures)
	prometheus.MustRegister(Rollbacks)
	prometheus.MustRegister(Unlocks)
	prometheus.MustRegister(BalancePushes)
	prometheus.MustRegister(Reconnects)
}
