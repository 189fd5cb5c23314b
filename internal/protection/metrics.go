package protection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tradesScreenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fheap_protection_trades_screened_total",
		Help: "Trade intents that went through a cross-source scan.",
	})

	protectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fheap_protection_applied_total",
		Help: "Trades charged a protection fee.",
	})

	rewardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fheap_protection_reward_distributions_total",
		Help: "Reward distributions settled on trade completion.",
	})
)
