// Package rates keeps the current points-per-currency conversion rate fresh.
package rates

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/observability"
)

type Fetcher interface {
	GetConversionRate(ctx context.Context) (decimal.Decimal, error)
}

type Poller struct {
	fetcher  Fetcher
	logger   observability.Logger
	interval time.Duration

	mu        sync.RWMutex
	rate      decimal.Decimal
	updatedAt time.Time
	loaded    bool
}

func NewPoller(fetcher Fetcher, def decimal.Decimal, interval time.Duration, logger observability.Logger) *Poller {
	return &Poller{fetcher: fetcher, rate: def, interval: interval, logger: logger}
}

// Current is the last good rate, or the default before the first success.
func (p *Poller) Current() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate
}

func (p *Poller) UpdatedAt() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt, p.loaded
}

// Refresh fetches the rate once. Failures and non-positive rates leave the
// current value in place.
func (p *Poller) Refresh(ctx context.Context) (decimal.Decimal, error) {
	rate, err := p.fetcher.GetConversionRate(ctx)
	if err == nil && !rate.IsPositive() {
		err = errors.Newf("backend returned non-positive conversion rate %s", rate)
	}
	if err != nil {
		observability.RateRefreshes.WithLabelValues("error").Inc()
		p.logger.WithField("component", "rates").Warn("conversion rate refresh failed: ", err)
		return p.Current(), err
	}

	p.mu.Lock()
	changed := !p.rate.Equal(rate)
	p.rate = rate
	p.updatedAt = time.Now()
	p.loaded = true
	p.mu.Unlock()

	observability.RateRefreshes.WithLabelValues("ok").Inc()
	if changed {
		p.logger.WithField("component", "rates").Info("conversion rate updated to ", rate.String())
	}
	return rate, nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}
