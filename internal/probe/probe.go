// Package probe answers "can we reach the backend right now" for the
// readiness endpoint. A probe is a short retry loop around the store's
// ping, bounded by an overall deadline so a wedged engine cannot stall
// the health surface.
package probe

import (
	"context"
	"log"
	"time"
)

// Pinger is the round trip the probe exercises. The store satisfies it,
// so readiness goes through the same queue and pinned connections the
// data path uses.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the probe verdict.
type Status string

const (
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// Config bounds one readiness check.
type Config struct {
	// Retries is the number of ping attempts before giving up.
	Retries int
	// Delay is the pause between attempts.
	Delay time.Duration
	// Timeout bounds the whole check, attempts and pauses included.
	Timeout time.Duration
}

// DefaultConfig matches the service defaults: three quick attempts
// inside one second.
func DefaultConfig() Config {
	return Config{
		Retries: 3,
		Delay:   100 * time.Millisecond,
		Timeout: time.Second,
	}
}

// Probe runs readiness checks against a pinger.
type Probe struct {
	pinger Pinger
	cfg    Config
}

func New(pinger Pinger, cfg Config) *Probe {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Probe{pinger: pinger, cfg: cfg}
}

// Check pings until one attempt succeeds, retries run out, or the
// deadline passes, whichever comes first. The last ping error is
// returned alongside an unavailable verdict.
func (p *Probe) Check(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		if err := p.pinger.Ping(ctx); err == nil {
			return StatusReady, nil
		} else {
			lastErr = err
			log.Printf("probe: attempt %d/%d failed: %v", attempt, p.cfg.Retries, err)
		}

		if attempt == p.cfg.Retries {
			break
		}
		select {
		case <-time.After(p.cfg.Delay):
		case <-ctx.Done():
			return StatusUnavailable, ctx.Err()
		}
	}
	return StatusUnavailable, lastErr
}
