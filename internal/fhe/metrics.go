package fhe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fheap_fhe_ops_total",
		Help: "Encrypted operations evaluated, by operation.",
	}, []string{"op"})

	revealsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fheap_fhe_reveals_total",
		Help: "Plaintext exits from the encrypted domain, by boundary.",
	}, []string{"boundary"})

	requireFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fheap_fhe_require_failures_total",
		Help: "Encrypted precondition failures, by boundary.",
	}, []string{"boundary"})
)
