// Package secondary expands primary interactions into the showers produced
// by the charged leptons they emit.
package secondary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radiosim/eventgen/sim"
)

// ErrPropagatorFailed is returned when the propagator cannot produce
// secondaries for a lepton. It is fatal for the run.
var ErrPropagatorFailed = errors.New("secondary propagator failed")

// Lepton is the input of one propagation: a charged lepton starting at
// Position and moving along the unit vector Direction.
type Lepton struct {
	EventGroupID int64
	Energy       float64
	Code         sim.Flavor
	Position     sim.Vec3
	Direction    sim.Vec3
}

// Product is one energy deposit along a lepton track. Distance is measured
// from the lepton start point. Code is the particle code reported by the
// propagator (a shower-producing particle, or the lepton itself for decays).
type Product struct {
	Distance    float64
	Energy      float64
	ShowerClass sim.ShowerClass
	Code        sim.Flavor
}

// Propagator computes the secondaries of a batch of leptons. The result has
// one (possibly empty) product list per input lepton, in input order.
// Implementations must be safe for concurrent use.
type Propagator interface {
	ComputeSecondaries(ctx context.Context, leptons []Lepton) ([][]Product, error)
}

// Retrying retries a Propagator with exponential backoff.
type Retrying struct {
	next       Propagator
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry wraps p so that failed calls are retried up to maxRetries times,
// waiting baseDelay * 2^attempt between attempts. Invalid shower classes and
// context errors are returned immediately.
func WithRetry(p Propagator, maxRetries int, baseDelay time.Duration) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{next: p, maxRetries: maxRetries, baseDelay: baseDelay}
}

// ComputeSecondaries implements Propagator.
func (r *Retrying) ComputeSecondaries(ctx context.Context, leptons []Lepton) ([][]Product, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * time.Duration(1<<uint(attempt-1))
			logrus.Debugf("propagator attempt %d failed, retrying in %v: %v", attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		out, err := r.next.ComputeSecondaries(ctx, leptons)
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrPropagatorFailed, r.maxRetries+1, lastErr)
}

func retryable(err error) bool {
	return !errors.Is(err, sim.ErrUnknownShowerClass) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
