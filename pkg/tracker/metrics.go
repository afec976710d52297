package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var seenVersionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "indexer",
	Subsystem: "tracker",
	Name:      "seen_versions",
	Help:      "Number of out-of-order batches currently buffered ahead of next_version.",
}, []string{"tracker"})

var nextVersionGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "indexer",
	Subsystem: "tracker",
	Name:      "next_version",
	Help:      "The next contiguous version the tracker expects to observe.",
}, []string{"tracker"})
