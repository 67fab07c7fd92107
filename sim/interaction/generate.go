// Package interaction samples the primary interaction of every event group:
// arrival direction, flavor, channel, inelasticity and energy.
package interaction

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/radiosim/eventgen/sim"
)

// CCProbability is the charged-current fraction of neutrino-nucleon
// interactions at ultra-high energies.
const CCProbability = 0.7064

// Inelasticity parameterization constants: y = (-ln(R1 + U*R2))^2.5.
const (
	r1 = 0.36787944 // 1/e
	r2 = 0.63212056 // 1 - 1/e
)

// EnergySampler draws n energies in [emin, emax] from a named spectrum.
type EnergySampler interface {
	Sample(rng *rand.Rand, n int, emin, emax float64, spectrum string) ([]float64, error)
}

// Config is the kinematic part of a run configuration.
type Config struct {
	Mode         sim.Mode
	StartEventID int64

	Emin, Emax float64
	Spectrum   string
	Deposited  bool

	Thetamin, Thetamax float64
	Phimin, Phimax     float64

	Flavors []sim.Flavor
}

// Validate checks the configuration without drawing random numbers.
func (c *Config) Validate() error {
	if len(c.Flavors) == 0 {
		return fmt.Errorf("interaction: empty flavor list")
	}
	for _, f := range c.Flavors {
		switch c.Mode {
		case sim.ModeSurfaceMuon:
			if f.Abs() != sim.Muon {
				return fmt.Errorf("interaction: flavor %d is not a muon", f)
			}
		default:
			if !f.IsNeutrino() {
				return fmt.Errorf("interaction: flavor %d is not a neutrino", f)
			}
		}
	}
	if c.Thetamin > c.Thetamax {
		return fmt.Errorf("interaction: thetamin (%g) above thetamax (%g)", c.Thetamin, c.Thetamax)
	}
	if c.Thetamin < 0 || c.Thetamax > math.Pi {
		return fmt.Errorf("interaction: zenith range [%g, %g] outside [0, pi]", c.Thetamin, c.Thetamax)
	}
	if c.Phimin > c.Phimax {
		return fmt.Errorf("interaction: phimin (%g) above phimax (%g)", c.Phimin, c.Phimax)
	}
	if c.Mode == sim.ModeSurfaceMuon && c.Deposited {
		return fmt.Errorf("interaction: deposited energies are not supported for surface muons")
	}
	return nil
}

// Generate builds the baseline table: one row per vertex, event-group ids
// StartEventID+i in vertex order. Every row is a primary hadronic shower at
// vertex time zero.
//
// Each quantity is drawn from its own RNG subsystem, so changing e.g. the
// spectrum leaves directions and flavors untouched.
func Generate(rngs *sim.PartitionedRNG, energies EnergySampler, cfg Config, positions []sim.Vec3) (sim.Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(positions)
	es, err := energies.Sample(rngs.ForSubsystem(sim.SubsystemFlux), n, cfg.Emin, cfg.Emax, cfg.Spectrum)
	if err != nil {
		return nil, fmt.Errorf("sampling energies: %w", err)
	}

	dirRNG := rngs.ForSubsystem(sim.SubsystemDirection)
	kinRNG := rngs.ForSubsystem(sim.SubsystemKinematics)
	zenith := SolidAngleZenith
	if cfg.Mode == sim.ModeSurfaceMuon {
		zenith = AreaWeightedZenith
	}

	table := make(sim.Table, n)
	for i, pos := range positions {
		r := sim.Record{
			EventGroupID:     cfg.StartEventID + int64(i),
			Azimuth:          uniform(dirRNG, cfg.Phimin, cfg.Phimax),
			Zenith:           zenith(dirRNG, cfg.Thetamin, cfg.Thetamax),
			Flavor:           cfg.Flavors[kinRNG.Intn(len(cfg.Flavors))],
			Energy:           es[i],
			InteractionIndex: 1,
			Position:         pos,
			ShowerClass:      sim.Hadronic,
		}
		if cfg.Mode == sim.ModeSurfaceMuon {
			r.Channel = sim.ChannelNone
			r.Inelasticity = sim.Some(0)
		} else {
			r.Channel = SampleChannel(kinRNG)
			y := SampleInelasticity(kinRNG)
			r.Inelasticity = sim.Some(y)
			if cfg.Deposited {
				r.Energy = PrimaryEnergy(r.Energy, y, r.Flavor, r.Channel)
			}
		}
		r.ShowerEnergy = r.Inelasticity.Value * r.Energy
		table[i] = r
	}
	logrus.Debugf("generated %d primary interactions", n)
	return table, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// SolidAngleZenith draws a zenith isotropically on the sphere:
// theta = arccos(U(cos thetamax, cos thetamin)).
func SolidAngleZenith(rng *rand.Rand, thetamin, thetamax float64) float64 {
	return math.Acos(uniform(rng, math.Cos(thetamax), math.Cos(thetamin)))
}

// AreaWeightedZenith draws a zenith for particles crossing a horizontal
// surface, weighting the isotropic law by the projected area cos(theta):
// theta = arcsin(sqrt(U(sin^2 thetamin, sin^2 thetamax))).
func AreaWeightedZenith(rng *rand.Rand, thetamin, thetamax float64) float64 {
	s0, s1 := math.Sin(thetamin), math.Sin(thetamax)
	return math.Asin(math.Sqrt(uniform(rng, s0*s0, s1*s1)))
}

// SampleChannel draws charged current with probability CCProbability.
func SampleChannel(rng *rand.Rand) sim.Channel {
	if rng.Float64() < CCProbability {
		return sim.ChannelCC
	}
	return sim.ChannelNC
}

// SampleInelasticity draws the fraction of the neutrino energy transferred
// to the hadronic shower. The result lies in (0, 1].
func SampleInelasticity(rng *rand.Rand) float64 {
	return math.Pow(-math.Log(r1+rng.Float64()*r2), 2.5)
}

// PrimaryEnergy converts a deposited energy into the primary neutrino energy.
// Electron-neutrino charged-current interactions deposit everything; all
// other channels only deposit the hadronic fraction y.
func PrimaryEnergy(deposited, y float64, f sim.Flavor, c sim.Channel) float64 {
	if c == sim.ChannelCC && f.Abs() == sim.ElectronNeutrino {
		return deposited
	}
	return deposited / y
}

// MuonFlavors returns the flavor list for a surface-muon charge selection:
// "plus" (mu+), "minus" (mu-) or "mix"/"" (both).
func MuonFlavors(charge string) ([]sim.Flavor, error) {
	switch charge {
	case "plus":
		return []sim.Flavor{-sim.Muon}, nil
	case "minus":
		return []sim.Flavor{sim.Muon}, nil
	case "mix", "":
		return []sim.Flavor{sim.Muon, -sim.Muon}, nil
	}
	return nil, fmt.Errorf("unknown muon charge %q; valid: plus, minus, mix", charge)
}
