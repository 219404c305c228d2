package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/trackinglog/pkg/config"
	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/options/logger"
)

var _ config.Reloadable = (*ReloadablePolicy)(nil)

// ReloadablePolicy is a Policy that can be replaced while sweeps run.
type ReloadablePolicy struct {
	mu     sync.RWMutex
	policy Policy
}

// NewReloadablePolicy creates a ReloadablePolicy holding p.
func NewReloadablePolicy(p Policy) *ReloadablePolicy {
	return &ReloadablePolicy{policy: p}
}

// Get returns the current policy.
func (r *ReloadablePolicy) Get() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// OnConfigChange implements config.Reloadable. It accepts Policy, *Policy or
// the *logger.Options the policy is derived from.
func (r *ReloadablePolicy) OnConfigChange(newConfig interface{}) error {
	var p Policy
	switch c := newConfig.(type) {
	case Policy:
		p = c
	case *Policy:
		if c == nil {
			return errors.ErrInvalidConfig.WithMessage("nil sweep policy")
		}
		p = *c
	case *logger.Options:
		if c == nil {
			return errors.ErrInvalidConfig.WithMessage("nil log options")
		}
		p = PolicyFrom(c)
	default:
		return errors.ErrInvalidConfig.WithMessagef("unexpected sweep config %T", newConfig)
	}

	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
	return nil
}

// Run sweeps dir every interval with the current policy until ctx is done.
// The first sweep runs immediately. Each result is passed to report, which
// may be nil.
func (s *Sweeper) Run(ctx context.Context, dir string, policy *ReloadablePolicy, interval time.Duration, report func(*Result, error)) error {
	if interval <= 0 {
		return errors.ErrInvalidConfig.WithMessagef("sweep interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := s.Sweep(ctx, dir, policy.Get())
		if report != nil {
			report(res, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
