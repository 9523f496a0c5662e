// File: internal/ratelimit/pacer.go
// Description: Per-session adaptive pacing around calls to the decision
// service and the remote environment. A token-bucket limiter enforces the
// minimum inter-call interval; an adaptive delay grows multiplicatively on
// rate-limit errors and decays on success, bounded by a ceiling and a floor.

package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/prism-cli/internal/config"
)

// Pacer spaces one session's outbound calls. It is owned by a single session
// and is not safe for concurrent use; cross-session fairness comes from each
// session pinning its own credential.
type Pacer struct {
	cfg    config.RateLimitConfig
	logger *zap.Logger

	limiter *rate.Limiter
	// delay is the adaptive component, applied on top of the minimum
	// interval once rate limiting has been observed.
	delay      time.Duration
	recentHits int
	pooled     bool

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a Pacer. pooled selects the shorter minimum interval used
// when the credential pool holds more than one token.
func NewPacer(cfg config.RateLimitConfig, pooled bool, logger *zap.Logger) *Pacer {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pacer{
		cfg:    cfg,
		logger: logger.Named("pacer"),
		delay:  cfg.Floor,
		pooled: pooled,
		sleep:  sleepCtx,
	}
	p.limiter = rate.NewLimiter(rate.Every(p.baseInterval()), 1)
	return p
}

func (p *Pacer) baseInterval() time.Duration {
	base := p.cfg.MinIntervalSingle
	if p.pooled {
		base = p.cfg.MinIntervalPooled
	}
	return base + time.Duration(p.recentHits)*p.cfg.HitPenalty
}

// Pace blocks until the next outbound call is allowed. It must be called
// immediately before every call to the decision service or the remote
// environment.
func (p *Pacer) Pace(ctx context.Context) error {
	p.limiter.SetLimit(rate.Every(p.baseInterval()))
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	// The adaptive delay only bites after a rate limit has been observed;
	// it decays back toward the floor as calls succeed.
	if p.recentHits > 0 && p.delay > p.cfg.Floor {
		p.logger.Debug("Applying adaptive rate-limit delay", zap.Duration("delay", p.delay))
		if err := p.sleep(ctx, p.delay); err != nil {
			return err
		}
	}
	return nil
}

// OnRateLimit records a rate-limit error: the adaptive delay doubles (per
// the configured factor) up to the ceiling, and subsequent calls are spaced
// further apart.
func (p *Pacer) OnRateLimit() {
	p.recentHits++
	grown := time.Duration(float64(p.delay) * p.cfg.BackoffFactor)
	if grown > p.cfg.Ceiling {
		grown = p.cfg.Ceiling
	}
	p.delay = grown
	p.logger.Warn("Rate limit observed, backing off",
		zap.Int("consecutive_hits", p.recentHits),
		zap.Duration("delay", p.delay))
}

// OnSuccess records a successful call: the adaptive delay decays toward the
// floor and the consecutive-hit counter resets.
func (p *Pacer) OnSuccess() {
	decayed := time.Duration(float64(p.delay) * p.cfg.DecayFactor)
	if decayed < p.cfg.Floor {
		decayed = p.cfg.Floor
	}
	p.delay = decayed
	p.recentHits = 0
}

// Delay exposes the current adaptive delay, mostly for tests and logs.
func (p *Pacer) Delay() time.Duration { return p.delay }

// RecentHits reports consecutive rate-limit hits since the last success.
func (p *Pacer) RecentHits() int { return p.recentHits }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
