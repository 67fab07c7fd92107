package interaction

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/flux"
)

func neutrinoConfig() Config {
	return Config{
		Mode:         sim.ModeNeutrino,
		StartEventID: 100,
		Emin:         1e17 * sim.EV,
		Emax:         1e19 * sim.EV,
		Spectrum:     flux.LogUniform,
		Thetamin:     0,
		Thetamax:     math.Pi,
		Phimin:       0,
		Phimax:       2 * math.Pi,
		Flavors:      []sim.Flavor{12, -12, 14, -14, 16, -16},
	}
}

func positions(n int) []sim.Vec3 {
	out := make([]sim.Vec3, n)
	for i := range out {
		out[i] = sim.Vec3{X: float64(i), Z: -float64(i)}
	}
	return out
}

// constSampler returns the same energy for every draw.
type constSampler float64

func (c constSampler) Sample(_ *rand.Rand, n int, _, _ float64, _ string) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(c)
	}
	return out, nil
}

func TestGenerate_NeutrinoMode_RowsAreConsistent(t *testing.T) {
	// GIVEN a neutrino run over the full sphere
	cfg := neutrinoConfig()
	rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(42))

	// WHEN 2000 primaries are generated
	table, err := Generate(rngs, flux.NewSampler(nil), cfg, positions(2000))
	require.NoError(t, err)
	require.Len(t, table, 2000)

	// THEN every row is a primary hadronic shower with y*E shower energy
	nCC := 0
	for i, r := range table {
		assert.Equal(t, int64(100+i), r.EventGroupID)
		assert.Equal(t, 1, r.InteractionIndex)
		assert.Equal(t, sim.Hadronic, r.ShowerClass)
		assert.Zero(t, r.VertexTime)
		assert.Equal(t, sim.Vec3{X: float64(i), Z: -float64(i)}, r.Position)
		assert.Contains(t, cfg.Flavors, r.Flavor)
		require.True(t, r.Inelasticity.Valid)
		y := r.Inelasticity.Value
		assert.Greater(t, y, 0.0)
		assert.LessOrEqual(t, y, 1.0)
		assert.InEpsilon(t, y*r.Energy, r.ShowerEnergy, 1e-12)
		assert.GreaterOrEqual(t, r.Energy, cfg.Emin)
		assert.LessOrEqual(t, r.Energy, cfg.Emax)
		assert.GreaterOrEqual(t, r.Zenith, 0.0)
		assert.LessOrEqual(t, r.Zenith, math.Pi)
		if r.Channel == sim.ChannelCC {
			nCC++
		} else {
			assert.Equal(t, sim.ChannelNC, r.Channel)
		}
	}
	// AND the charged-current fraction matches CCProbability within 4 sigma
	sigma := math.Sqrt(CCProbability * (1 - CCProbability) / 2000)
	assert.InDelta(t, CCProbability, float64(nCC)/2000, 4*sigma)
}

func TestGenerate_SolidAngleZenith_CosineIsUniform(t *testing.T) {
	cfg := neutrinoConfig()
	n := 4000
	table, err := Generate(sim.NewPartitionedRNG(7), flux.NewSampler(nil), cfg, positions(n))
	require.NoError(t, err)
	cosines := make([]float64, n)
	for i, r := range table {
		cosines[i] = (math.Cos(r.Zenith) + 1) / 2
	}
	sort.Float64s(cosines)
	d := stat.KolmogorovSmirnov(cosines, nil, floats.Span(make([]float64, n), 0, 1), nil)
	assert.Less(t, d, 2*1.36*math.Sqrt(2.0/float64(n)))
}

func TestAreaWeightedZenith_SineSquaredIsUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 4000
	thetamax := math.Pi / 2
	s2 := make([]float64, n)
	for i := range s2 {
		th := AreaWeightedZenith(rng, 0, thetamax)
		require.GreaterOrEqual(t, th, 0.0)
		require.LessOrEqual(t, th, thetamax)
		s2[i] = math.Pow(math.Sin(th), 2)
	}
	sort.Float64s(s2)
	d := stat.KolmogorovSmirnov(s2, nil, floats.Span(make([]float64, n), 0, 1), nil)
	assert.Less(t, d, 2*1.36*math.Sqrt(2.0/float64(n)))
}

func TestGenerate_Deposited_ConvertsToPrimaryEnergy(t *testing.T) {
	cfg := neutrinoConfig()
	cfg.Deposited = true
	edep := 1e18 * sim.EV
	table, err := Generate(sim.NewPartitionedRNG(9), constSampler(edep), cfg, positions(500))
	require.NoError(t, err)
	for _, r := range table {
		y := r.Inelasticity.Value
		if r.Channel == sim.ChannelCC && r.Flavor.Abs() == sim.ElectronNeutrino {
			assert.Equal(t, edep, r.Energy)
		} else {
			assert.InEpsilon(t, edep/y, r.Energy, 1e-12)
			// The hadronic shower carries exactly the deposited energy.
			assert.InEpsilon(t, edep, r.ShowerEnergy, 1e-9)
		}
	}
}

func TestGenerate_SurfaceMuonMode(t *testing.T) {
	cfg := neutrinoConfig()
	cfg.Mode = sim.ModeSurfaceMuon
	cfg.Thetamax = math.Pi / 2
	var err error
	cfg.Flavors, err = MuonFlavors("mix")
	require.NoError(t, err)

	table, err := Generate(sim.NewPartitionedRNG(1), flux.NewSampler(nil), cfg, positions(300))
	require.NoError(t, err)
	for _, r := range table {
		assert.Equal(t, sim.Muon, r.Flavor.Abs())
		assert.Equal(t, sim.ChannelNone, r.Channel)
		assert.Equal(t, sim.Some(0), r.Inelasticity)
		assert.Zero(t, r.ShowerEnergy)
		assert.LessOrEqual(t, r.Zenith, math.Pi/2)
	}
}

func TestGenerate_SameKey_SameTable(t *testing.T) {
	cfg := neutrinoConfig()
	a, err := Generate(sim.NewPartitionedRNG(5), flux.NewSampler(nil), cfg, positions(50))
	require.NoError(t, err)
	b, err := Generate(sim.NewPartitionedRNG(5), flux.NewSampler(nil), cfg, positions(50))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_InvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"no flavors":        func(c *Config) { c.Flavors = nil },
		"charged lepton":    func(c *Config) { c.Flavors = []sim.Flavor{13} },
		"inverted zenith":   func(c *Config) { c.Thetamin, c.Thetamax = 2, 1 },
		"zenith above pi":   func(c *Config) { c.Thetamax = 4 },
		"inverted azimuth":  func(c *Config) { c.Phimin, c.Phimax = 1, 0 },
		"muon in nu mode":   func(c *Config) { c.Flavors = []sim.Flavor{-13} },
		"deposited muons":   func(c *Config) { c.Mode, c.Flavors, c.Deposited = sim.ModeSurfaceMuon, []sim.Flavor{13}, true },
		"neutrino in muons": func(c *Config) { c.Mode = sim.ModeSurfaceMuon },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := neutrinoConfig()
			mutate(&cfg)
			_, err := Generate(sim.NewPartitionedRNG(1), flux.NewSampler(nil), cfg, positions(3))
			assert.Error(t, err)
		})
	}
}

func TestGenerate_UnknownSpectrum(t *testing.T) {
	cfg := neutrinoConfig()
	cfg.Spectrum = "nope"
	_, err := Generate(sim.NewPartitionedRNG(1), flux.NewSampler(nil), cfg, positions(3))
	assert.ErrorIs(t, err, sim.ErrUnknownSpectrum)
}

func TestMuonFlavors(t *testing.T) {
	plus, err := MuonFlavors("plus")
	require.NoError(t, err)
	assert.Equal(t, []sim.Flavor{-13}, plus)
	minus, err := MuonFlavors("minus")
	require.NoError(t, err)
	assert.Equal(t, []sim.Flavor{13}, minus)
	_, err = MuonFlavors("both")
	assert.Error(t, err)
}
