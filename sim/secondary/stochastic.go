package secondary

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/radiosim/eventgen/sim"
)

// Particle codes reported for the showers of the built-in propagator.
const (
	CodeEMShower       sim.Flavor = 11
	CodeHadronicShower sim.Flavor = 211
)

// Tau properties.
const (
	TauLifetime = 290.3 * sim.FS
	TauMass     = 1776.86 * sim.MeV
)

// Medium describes the material a lepton traverses.
type Medium struct {
	// Density in g/cm^3, averaged over the column relevant for the site.
	Density float64
}

// profiles maps configuration profile names to media.
var profiles = map[string]Medium{
	"SouthPole": {Density: 0.89},
	"Greenland": {Density: 0.90},
	"MooresBay": {Density: 0.88},
	"InfIce":    {Density: 0.917},
}

// ValidProfileNames returns the accepted propagator configuration profiles.
func ValidProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsValidProfile reports whether name is a known configuration profile.
func IsValidProfile(name string) bool {
	_, ok := profiles[name]
	return ok
}

// Energy-loss parameters per metre of water equivalent: dE/dx = -(a + b*E).
// a is the continuous (ionization) part, b the radiative part that is
// sampled as discrete losses.
type lossParams struct {
	a float64
	b float64
}

var lossTable = map[sim.Flavor]lossParams{
	sim.Muon: {a: 0.26 * sim.GeV, b: 3.6e-4},
	sim.Tau:  {a: 0.26 * sim.GeV, b: 4.5e-5},
}

// Branching of radiative losses: pair production and bremsstrahlung give
// electromagnetic showers, photonuclear interactions hadronic ones.
const hadronicFraction = 0.2

// Tau decay branching into the electron and muon channels.
const (
	tauToElectron = 0.178
	tauToMuon     = 0.174
)

// StochasticPropagator is a built-in Monte-Carlo lepton propagator. Tracks
// lose energy continuously and through discrete radiative losses; taus decay
// after an exponentially distributed length. Every lepton draws from its own
// RNG stream derived from the run key and its event group, so results do not
// depend on call order or concurrency.
type StochasticPropagator struct {
	key    sim.SimulationKey
	medium Medium

	// MinEnergy stops tracking below this lepton energy and suppresses
	// losses below it.
	MinEnergy float64
	// VCut is the smallest relative energy loss sampled as a discrete loss.
	VCut float64
	// MaxProducts bounds the number of losses per lepton.
	MaxProducts int
}

// NewStochasticPropagator creates a propagator for the named configuration
// profile.
func NewStochasticPropagator(key sim.SimulationKey, profile string) (*StochasticPropagator, error) {
	m, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("unknown propagator config %q; valid: %s",
			profile, strings.Join(ValidProfileNames(), ", "))
	}
	return &StochasticPropagator{
		key:         key,
		medium:      m,
		MinEnergy:   1 * sim.PeV,
		VCut:        0.05,
		MaxProducts: 1000,
	}, nil
}

// ComputeSecondaries implements Propagator.
func (p *StochasticPropagator) ComputeSecondaries(ctx context.Context, leptons []Lepton) ([][]Product, error) {
	out := make([][]Product, len(leptons))
	for i, l := range leptons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loss, ok := lossTable[l.Code.Abs()]
		if !ok {
			return nil, fmt.Errorf("%w: cannot propagate particle %d", ErrPropagatorFailed, l.Code)
		}
		rng := sim.NewRand(p.key, sim.SubsystemLepton(l.EventGroupID))
		out[i] = p.propagate(rng, l, loss)
	}
	return out, nil
}

// propagate tracks one lepton. Distances between discrete losses are
// exponential with rate b*rho/<v>, relative losses v follow 1/v on [vcut, 1].
func (p *StochasticPropagator) propagate(rng *rand.Rand, l Lepton, loss lossParams) []Product {
	// Losses per metre of the medium.
	rho := p.medium.Density
	a := loss.a * rho
	meanV := (1 - p.VCut) / math.Log(1/p.VCut)
	rate := loss.b * rho / meanV

	decayAt := math.Inf(1)
	if l.Code.Abs() == sim.Tau {
		gamma := l.Energy / TauMass
		decayAt = -math.Log(1-rng.Float64()) * gamma * TauLifetime * sim.SpeedOfLight
	}

	var products []Product
	e, x := l.Energy, 0.0
	for e > p.MinEnergy && len(products) < p.MaxProducts {
		dx := -math.Log(1-rng.Float64()) / rate
		if x+dx >= decayAt {
			e -= a * (decayAt - x)
			if e > p.MinEnergy {
				if d, ok := p.decay(rng, e, decayAt); ok && d.Energy >= p.MinEnergy {
					products = append(products, d)
				}
			}
			break
		}
		x += dx
		e -= a * dx
		if e <= p.MinEnergy {
			break
		}
		v := math.Pow(p.VCut, 1-rng.Float64())
		deposit := v * e
		e -= deposit
		if deposit < p.MinEnergy {
			continue
		}
		class, code := sim.EM, CodeEMShower
		if rng.Float64() < hadronicFraction {
			class, code = sim.Hadronic, CodeHadronicShower
		}
		products = append(products, Product{Distance: x, Energy: deposit, ShowerClass: class, Code: code})
	}
	return products
}

// decay produces the visible shower of a tau decay. Decays into a muon
// deposit nothing visible.
func (p *StochasticPropagator) decay(rng *rand.Rand, e, at float64) (Product, bool) {
	channel := rng.Float64()
	visible := rng.Float64() * e
	switch {
	case channel < tauToElectron:
		return Product{Distance: at, Energy: visible, ShowerClass: sim.EM, Code: sim.Electron}, true
	case channel < tauToElectron+tauToMuon:
		return Product{}, false
	}
	return Product{Distance: at, Energy: visible, ShowerClass: sim.Hadronic, Code: CodeHadronicShower}, true
}
