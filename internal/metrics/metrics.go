// Package metrics exposes the wallet core's prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RedemptionsTotal counts redemption attempts by outcome status.
	RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_redemptions_total",
		Help: "Redemption attempts by outcome status.",
	}, []string{"status"})

	// CoinsRedeemedTotal counts coins debited by successful redemptions.
	CoinsRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_coins_redeemed_total",
		Help: "Coins debited by successful redemptions.",
	})

	// CoinsCreditedTotal counts coins granted by accruals.
	CoinsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_coins_credited_total",
		Help: "Coins granted by accruals.",
	})

	// CoinsExpiredTotal counts coins converted to expiry debits.
	CoinsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_coins_expired_total",
		Help: "Coins converted to expiry debits by the sweeper.",
	})

	// SweepRunsTotal counts expiry sweep passes by outcome.
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_sweep_runs_total",
		Help: "Expiry sweep passes by outcome.",
	}, []string{"status"})
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
