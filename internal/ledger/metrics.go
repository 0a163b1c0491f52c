package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stateReadCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stablegas",
		Subsystem: "ledger",
		Name:      "state_read_counter",
		Help:      "the total number of account state reads",
	})
	stateWriteCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stablegas",
		Subsystem: "ledger",
		Name:      "state_write_counter",
		Help:      "the total number of account state writes",
	})
	snapshotRevertCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stablegas",
		Subsystem: "ledger",
		Name:      "snapshot_revert_counter",
		Help:      "the total number of snapshot reverts",
	})
)

func init() {
	prometheus.MustRegister(stateReadCounter)
	prometheus.MustRegister(stateWriteCounter)
	prometheus.MustRegister(snapshotRevertCounter)
}
