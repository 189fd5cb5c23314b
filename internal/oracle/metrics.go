package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ingestsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "fheap_oracle_ingests_total",
	Help: "Price observations committed, inverse records not counted.",
})
