// Package flux draws interaction energies from named spectral models.
//
// Closed-form spectra (log-uniform, E^-gamma) are sampled by direct
// inversion. Tabulated and functional flux models go through a generic
// inverse-CDF built on a dense energy grid.
package flux

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/radiosim/eventgen/sim"
)

// Named spectra.
const (
	LogUniform        = "log_uniform"
	IceCube2017       = "IceCube-nu-2017"
	GZK1              = "GZK-1"
	GZK1PlusIceCube   = "GZK-1+IceCube-nu-2017"
	powerLawPrefix    = "E-"
	DefaultGridPoints = 1_000_000
)

// Sampler draws energies for a run. It holds the immutable flux table
// collaborator (nil when no tabulated model is configured).
type Sampler struct {
	table      *Table
	gridPoints int
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithGridPoints sets the number of grid edges used by the inverse-CDF
// sampler. Values below 2 are ignored.
func WithGridPoints(n int) Option {
	return func(s *Sampler) {
		if n >= 2 {
			s.gridPoints = n
		}
	}
}

// NewSampler creates a Sampler. table may be nil.
func NewSampler(table *Table, opts ...Option) *Sampler {
	s := &Sampler{table: table, gridPoints: DefaultGridPoints}
	for _, o := range opts {
		o(s)
	}
	return s
}

// spectrum draws n energies in [emin, emax].
type spectrum interface {
	sample(rng *rand.Rand, n int, emin, emax float64) ([]float64, error)
}

// Validate checks that a spectrum name is known and usable with the loaded
// collaborators without drawing any random numbers.
func (s *Sampler) Validate(name string) error {
	_, err := s.spectrum(name)
	return err
}

// Sample returns n energies in [emin, emax] distributed according to the
// named spectrum.
func (s *Sampler) Sample(rng *rand.Rand, n int, emin, emax float64, name string) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("flux: negative sample count %d", n)
	}
	if !(emin > 0) || !(emax >= emin) || math.IsInf(emax, 0) {
		return nil, fmt.Errorf("flux: invalid energy range [%g, %g]", emin, emax)
	}
	sp, err := s.spectrum(name)
	if err != nil {
		return nil, err
	}
	return sp.sample(rng, n, emin, emax)
}

func (s *Sampler) spectrum(name string) (spectrum, error) {
	switch {
	case name == LogUniform:
		return logUniform{}, nil

	case strings.HasPrefix(name, powerLawPrefix):
		gamma, err := strconv.ParseFloat(name[1:], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: cannot parse exponent: %v", sim.ErrInvalidSpectrum, name, err)
		}
		exp := gamma + 1
		if exp == 0 || math.IsNaN(exp) || math.IsInf(exp, 0) {
			return nil, fmt.Errorf("%w: %q has a degenerate normalization", sim.ErrInvalidSpectrum, name)
		}
		return powerLaw{exp: exp}, nil

	case name == IceCube2017:
		return &tabulated{flux: IceCubeNu2017, points: s.gridPoints}, nil

	case name == GZK1:
		if s.table == nil {
			return nil, fmt.Errorf("%w: spectrum %q", sim.ErrFluxTableMissing, name)
		}
		return &tabulated{flux: s.table.Flux, points: s.gridPoints}, nil

	case name == GZK1PlusIceCube:
		if s.table == nil {
			return nil, fmt.Errorf("%w: spectrum %q", sim.ErrFluxTableMissing, name)
		}
		return &tabulated{flux: Sum(IceCubeNu2017, s.table.Flux), points: s.gridPoints}, nil
	}
	return nil, fmt.Errorf("%w %q; valid: %s, E-<gamma>, %s, %s, %s",
		sim.ErrUnknownSpectrum, name, LogUniform, IceCube2017, GZK1, GZK1PlusIceCube)
}

// logUniform is uniform in log10(E).
type logUniform struct{}

func (logUniform) sample(rng *rand.Rand, n int, emin, emax float64) ([]float64, error) {
	lo, hi := math.Log10(emin), math.Log10(emax)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pow(10, lo+(hi-lo)*rng.Float64())
	}
	return out, nil
}

// powerLaw is E^-gamma. exp holds 1-gamma, the exponent of the integrated
// spectrum, so that N = E^exp is uniformly distributed.
type powerLaw struct {
	exp float64
}

func (p powerLaw) sample(rng *rand.Rand, n int, emin, emax float64) ([]float64, error) {
	nmin := math.Pow(emin, p.exp)
	nmax := math.Pow(emax, p.exp)
	out := make([]float64, n)
	for i := range out {
		u := nmax + (nmin-nmax)*rng.Float64()
		e := math.Exp(math.Log(u) / p.exp)
		out[i] = math.Min(emax, math.Max(emin, e))
	}
	return out, nil
}

// tabulated samples an arbitrary flux function through an empirical CDF.
type tabulated struct {
	flux   Func
	points int
}

func (t *tabulated) sample(rng *rand.Rand, n int, emin, emax float64) ([]float64, error) {
	if emin == emax {
		out := make([]float64, n)
		for i := range out {
			out[i] = emin
		}
		return out, nil
	}
	inv, err := newInverseCDF(t.flux, emin, emax, t.points)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = inv.at(rng.Float64() * inv.total())
	}
	return out, nil
}

// inverseCDF maps cumulative flux back to energy. cdf is non-decreasing,
// cdf[0] = 0, and edges[i] is the energy at which cdf[i] is reached.
type inverseCDF struct {
	edges []float64
	cdf   []float64
}

// newInverseCDF integrates flux over a linear grid with the trapezoid rule.
// Negative or NaN flux values are clamped to zero so the CDF stays monotonic.
func newInverseCDF(flux Func, emin, emax float64, points int) (*inverseCDF, error) {
	edges := floats.Span(make([]float64, points), emin, emax)
	values := make([]float64, points)
	for i, e := range edges {
		v := flux(e)
		if !(v > 0) || math.IsInf(v, 0) {
			v = 0
		}
		values[i] = v
	}
	increments := make([]float64, points)
	for i := 1; i < points; i++ {
		increments[i] = 0.5 * (values[i-1] + values[i]) * (edges[i] - edges[i-1])
	}
	cdf := floats.CumSum(make([]float64, points), increments)
	if !(cdf[points-1] > 0) {
		return nil, fmt.Errorf("%w: flux integrates to zero over [%g, %g]", sim.ErrInvalidSpectrum, emin, emax)
	}
	return &inverseCDF{edges: edges, cdf: cdf}, nil
}

func (c *inverseCDF) total() float64 {
	return c.cdf[len(c.cdf)-1]
}

// at returns the energy where the CDF reaches u, interpolating linearly
// inside the bracketing grid cell. Plateaus (zero flux) are skipped because
// the search returns the first edge whose CDF reaches u.
func (c *inverseCDF) at(u float64) float64 {
	j := sort.SearchFloat64s(c.cdf, u)
	if j == 0 {
		j = sort.Search(len(c.cdf), func(i int) bool { return c.cdf[i] > 0 })
		if j == len(c.cdf) {
			return c.edges[0]
		}
		return c.edges[j-1]
	}
	if j >= len(c.cdf) {
		return c.edges[len(c.edges)-1]
	}
	lo, hi := c.cdf[j-1], c.cdf[j]
	return c.edges[j-1] + (u-lo)/(hi-lo)*(c.edges[j]-c.edges[j-1])
}
