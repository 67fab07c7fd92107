package flux

import (
	"math"

	"github.com/radiosim/eventgen/sim"
)

// Func returns a differential flux (events per energy, time, solid angle
// and area) at energy e.
type Func func(e float64) float64

// IceCube fit parameters of the 2017 astrophysical muon-neutrino sample.
const (
	IceCubeSlope  = -2.19
	IceCubeOffset = 1.01
)

// IceCubeNu2017 is the closed-form astrophysical power law
// 3 * offset * (E / 100 TeV)^slope * 1e-18 GeV^-1 cm^-2 s^-1 sr^-1.
func IceCubeNu2017(e float64) float64 {
	unit := 1 / (sim.GeV * sim.CM * sim.CM * sim.S)
	return 3 * IceCubeOffset * math.Pow(e/(100*sim.TeV), IceCubeSlope) * 1e-18 * unit
}

// Sum returns the pointwise sum of several fluxes.
func Sum(fs ...Func) Func {
	return func(e float64) float64 {
		total := 0.0
		for _, f := range fs {
			total += f(e)
		}
		return total
	}
}
