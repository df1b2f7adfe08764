// Package sweeper runs the expiry sweep on a fixed cadence, outside any
// request path.
package sweeper

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/supercoins/internal/metrics"
	"github.com/MarkoPoloResearchLab/supercoins/pkg/wallet"
	"go.uber.org/zap"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 100

	statusOK    = "ok"
	statusError = "error"
)

// Config controls sweep cadence and batch size.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Sweeper periodically expires stale credit remainders.
type Sweeper struct {
	service *wallet.Service
	config  Config
	logger  *zap.Logger
	nowFn   func() time.Time
}

// New wires a Sweeper.
func New(service *wallet.Service, config Config, logger *zap.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	return &Sweeper{
		service: service,
		config:  config,
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately, then on every tick until the context is
// cancelled. Always returns nil after a clean shutdown; individual sweep
// failures are logged and the cadence continues.
func (sweeper *Sweeper) Run(ctx context.Context) error {
	sweeper.sweep(ctx)
	ticker := time.NewTicker(sweeper.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweeper.sweep(ctx)
		}
	}
}

func (sweeper *Sweeper) sweep(ctx context.Context) {
	report, err := sweeper.service.SweepExpired(ctx, sweeper.nowFn(), sweeper.config.BatchSize)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues(statusError).Inc()
		sweeper.logger.Error("expiry sweep failed",
			zap.Int("scanned", report.Scanned),
			zap.Int("expired", report.Expired),
			zap.Error(err),
		)
		return
	}
	metrics.SweepRunsTotal.WithLabelValues(statusOK).Inc()
	metrics.CoinsExpiredTotal.Add(float64(report.CoinsExpired))
	sweeper.logger.Info("expiry sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("expired", report.Expired),
		zap.Int64("coins_expired", report.CoinsExpired),
		zap.Int("failures", report.Failures),
	)
}
