package secondary

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiosim/eventgen/sim"
)

// flaky fails the first n calls with err.
type flaky struct {
	n     int32
	err   error
	calls atomic.Int32
}

func (f *flaky) ComputeSecondaries(_ context.Context, leptons []Lepton) ([][]Product, error) {
	if f.calls.Add(1) <= f.n {
		return nil, f.err
	}
	return make([][]Product, len(leptons)), nil
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	f := &flaky{n: 2, err: errors.New("timeout")}
	out, err := WithRetry(f, 2, time.Millisecond).ComputeSecondaries(context.Background(), []Lepton{{}})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	f := &flaky{n: 5, err: errors.New("timeout")}
	_, err := WithRetry(f, 1, time.Millisecond).ComputeSecondaries(context.Background(), []Lepton{{}})
	assert.ErrorIs(t, err, ErrPropagatorFailed)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestWithRetry_DoesNotRetryInvalidShowerClass(t *testing.T) {
	f := &flaky{n: 5, err: fmt.Errorf("bad product: %w", sim.ErrUnknownShowerClass)}
	_, err := WithRetry(f, 3, time.Millisecond).ComputeSecondaries(context.Background(), []Lepton{{}})
	assert.ErrorIs(t, err, sim.ErrUnknownShowerClass)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	f := &flaky{n: 5, err: errors.New("timeout")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithRetry(f, 3, time.Hour).ComputeSecondaries(ctx, []Lepton{{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStochasticPropagator_UnknownProfile(t *testing.T) {
	_, err := NewStochasticPropagator(1, "Atlantis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SouthPole")
	for _, name := range ValidProfileNames() {
		assert.True(t, IsValidProfile(name))
	}
}

func TestStochasticPropagator_ProductsArePhysical(t *testing.T) {
	p, err := NewStochasticPropagator(sim.NewSimulationKey(42), "SouthPole")
	require.NoError(t, err)

	leptons := make([]Lepton, 50)
	for i := range leptons {
		code := sim.Flavor(13)
		if i%2 == 1 {
			code = -15
		}
		leptons[i] = Lepton{EventGroupID: int64(i), Energy: 1e19, Code: code, Direction: sim.Vec3{Z: -1}}
	}
	out, err := p.ComputeSecondaries(context.Background(), leptons)
	require.NoError(t, err)
	require.Len(t, out, len(leptons))

	total := 0
	for i, products := range out {
		deposited := 0.0
		last := 0.0
		for _, pr := range products {
			assert.GreaterOrEqual(t, pr.Distance, last, "lepton %d: distances must not decrease", i)
			last = pr.Distance
			assert.GreaterOrEqual(t, pr.Energy, p.MinEnergy)
			_, err := sim.ParseShowerClass(string(pr.ShowerClass))
			assert.NoError(t, err)
			deposited += pr.Energy
		}
		assert.LessOrEqual(t, deposited, leptons[i].Energy)
		total += len(products)
	}
	assert.Greater(t, total, 0)
}

func TestStochasticPropagator_PerLeptonDeterminism(t *testing.T) {
	// GIVEN the same leptons submitted in a different batch layout
	p, err := NewStochasticPropagator(sim.NewSimulationKey(7), "Greenland")
	require.NoError(t, err)
	a := Lepton{EventGroupID: 10, Energy: 1e18, Code: 13}
	b := Lepton{EventGroupID: 11, Energy: 1e18, Code: 15}

	batch, err := p.ComputeSecondaries(context.Background(), []Lepton{a, b})
	require.NoError(t, err)
	single, err := p.ComputeSecondaries(context.Background(), []Lepton{b})
	require.NoError(t, err)

	// THEN each lepton gets the same products regardless of batch order
	assert.Equal(t, batch[1], single[0])
}

func TestStochasticPropagator_RejectsNonLeptons(t *testing.T) {
	p, err := NewStochasticPropagator(1, "InfIce")
	require.NoError(t, err)
	_, err = p.ComputeSecondaries(context.Background(), []Lepton{{Energy: 1e18, Code: 14}})
	assert.ErrorIs(t, err, ErrPropagatorFailed)
}

func TestStochasticPropagator_TauDecayBranching(t *testing.T) {
	p, err := NewStochasticPropagator(1, "InfIce")
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	const n = 20000
	var em, invisible int
	for i := 0; i < n; i++ {
		d, ok := p.decay(rng, 1e18, 500)
		if !ok {
			invisible++
			continue
		}
		assert.Equal(t, 500.0, d.Distance)
		assert.LessOrEqual(t, d.Energy, 1e18)
		if d.ShowerClass == sim.EM {
			em++
		}
	}
	assert.InDelta(t, tauToElectron, float64(em)/n, 0.015)
	assert.InDelta(t, tauToMuon, float64(invisible)/n, 0.015)
}
