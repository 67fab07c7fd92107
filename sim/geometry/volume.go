// Package geometry resolves the fiducial and full simulation volumes, places
// interaction vertices inside them and tests rays against the fiducial region.
package geometry

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/radiosim/eventgen/sim"
)

// CylinderSpec declares a cylindrical annulus times z slab. Full-region
// overrides are optional; nil means "derive from the fiducial region".
type CylinderSpec struct {
	FiducialRMin float64 `yaml:"fiducial_rmin"`
	FiducialRMax float64 `yaml:"fiducial_rmax"`
	FiducialZMin float64 `yaml:"fiducial_zmin"`
	FiducialZMax float64 `yaml:"fiducial_zmax"`

	FullRMin *float64 `yaml:"full_rmin,omitempty"`
	FullRMax *float64 `yaml:"full_rmax,omitempty"`
	FullZMin *float64 `yaml:"full_zmin,omitempty"`
	FullZMax *float64 `yaml:"full_zmax,omitempty"`
}

// BoxSpec declares an axis-aligned box.
type BoxSpec struct {
	FiducialXMin float64 `yaml:"fiducial_xmin"`
	FiducialXMax float64 `yaml:"fiducial_xmax"`
	FiducialYMin float64 `yaml:"fiducial_ymin"`
	FiducialYMax float64 `yaml:"fiducial_ymax"`
	FiducialZMin float64 `yaml:"fiducial_zmin"`
	FiducialZMax float64 `yaml:"fiducial_zmax"`

	FullXMin *float64 `yaml:"full_xmin,omitempty"`
	FullXMax *float64 `yaml:"full_xmax,omitempty"`
	FullYMin *float64 `yaml:"full_ymin,omitempty"`
	FullYMax *float64 `yaml:"full_ymax,omitempty"`
	FullZMin *float64 `yaml:"full_zmin,omitempty"`
	FullZMax *float64 `yaml:"full_zmax,omitempty"`
}

// Spec is the volume declaration of a run: exactly one of Cylinder or Box.
type Spec struct {
	Cylinder *CylinderSpec `yaml:"cylinder,omitempty"`
	Box      *BoxSpec      `yaml:"box,omitempty"`
}

// Validate checks that exactly one variant is present and that every
// interval is non-empty.
func (s *Spec) Validate() error {
	switch {
	case s.Cylinder == nil && s.Box == nil:
		return fmt.Errorf("%w: neither cylinder nor box given", sim.ErrInvalidVolume)
	case s.Cylinder != nil && s.Box != nil:
		return fmt.Errorf("%w: both cylinder and box given", sim.ErrInvalidVolume)
	case s.Cylinder != nil:
		c := s.Cylinder
		if c.FiducialRMin < 0 {
			return fmt.Errorf("%w: fiducial_rmin must be non-negative, got %g", sim.ErrInvalidVolume, c.FiducialRMin)
		}
		if err := checkInterval("fiducial_r", c.FiducialRMin, c.FiducialRMax); err != nil {
			return err
		}
		return checkInterval("fiducial_z", c.FiducialZMin, c.FiducialZMax)
	default:
		b := s.Box
		if err := checkInterval("fiducial_x", b.FiducialXMin, b.FiducialXMax); err != nil {
			return err
		}
		if err := checkInterval("fiducial_y", b.FiducialYMin, b.FiducialYMax); err != nil {
			return err
		}
		return checkInterval("fiducial_z", b.FiducialZMin, b.FiducialZMax)
	}
}

func checkInterval(name string, lo, hi float64) error {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return fmt.Errorf("%w: %s bounds must be finite", sim.ErrInvalidVolume, name)
	}
	if lo >= hi {
		return fmt.Errorf("%w: %smin (%g) must be below %smax (%g)", sim.ErrInvalidVolume, name, lo, name, hi)
	}
	return nil
}

// Volume is a resolved simulation volume. Full contains the fiducial region
// unless the caller overrode the full bounds inconsistently.
type Volume struct {
	Fiducial    sim.Bounds
	Full        sim.Bounds
	TrackLength float64 // inflation margin, zero without secondary propagation
	Inflated    bool
}

// trackLengthCoeffs is the quartic fit in log10(E/eV) of the 95% quantile of
// the tau track length, in log10(m).
var trackLengthCoeffs = [...]float64{6.80016451e+02, -1.61902120e+02, 1.42383021e+01, -5.47388025e-01, 7.79239697e-03}

// TrackLength95 estimates the 95th percentile of the secondary lepton range
// for the largest energy of the run.
func TrackLength95(emax float64) float64 {
	x := math.Log10(emax / sim.EV)
	logLength := 0.0
	for i, c := range trackLengthCoeffs {
		logLength += c * math.Pow(x, float64(i))
	}
	return math.Pow(10, logLength) * sim.M
}

func or(override *float64, def float64) float64 {
	if override != nil {
		return *override
	}
	return def
}

// Resolve computes fiducial and full regions. Without proposal the full
// region equals the fiducial region. With proposal it is inflated by the
// estimated secondary range for emax, unless full_* overrides are given.
func Resolve(spec Spec, proposal bool, emax float64) (*Volume, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	v := &Volume{Inflated: proposal}
	if proposal {
		v.TrackLength = TrackLength95(emax)
	}
	L := v.TrackLength

	if c := spec.Cylinder; c != nil {
		fid := sim.CylinderBounds{RMin: c.FiducialRMin, RMax: c.FiducialRMax, ZMin: c.FiducialZMin, ZMax: c.FiducialZMax}
		full := fid
		if proposal {
			if fid.ZMin >= 0 && c.FullZMin == nil {
				return nil, fmt.Errorf("%w: fiducial_zmin must be negative to inflate a cylinder, got %g", sim.ErrInvalidVolume, fid.ZMin)
			}
			full = sim.CylinderBounds{
				RMin: or(c.FullRMin, fid.RMin/3),
				RMax: or(c.FullRMax, fid.RMax+L),
				ZMin: or(c.FullZMin, fid.ZMin-L),
				ZMax: or(c.FullZMax, fid.ZMax/3),
			}
			if err := checkInterval("full_r", full.RMin, full.RMax); err != nil {
				return nil, err
			}
			if err := checkInterval("full_z", full.ZMin, full.ZMax); err != nil {
				return nil, err
			}
		}
		v.Fiducial = sim.Bounds{Cylinder: &fid}
		v.Full = sim.Bounds{Cylinder: &full}
		return v, nil
	}

	b := spec.Box
	fid := sim.BoxBounds{
		XMin: b.FiducialXMin, XMax: b.FiducialXMax,
		YMin: b.FiducialYMin, YMax: b.FiducialYMax,
		ZMin: b.FiducialZMin, ZMax: b.FiducialZMax,
	}
	full := fid
	if proposal {
		// Every face moves outward except +z: secondaries are not produced
		// above the surface.
		full = sim.BoxBounds{
			XMin: or(b.FullXMin, fid.XMin-L), XMax: or(b.FullXMax, fid.XMax+L),
			YMin: or(b.FullYMin, fid.YMin-L), YMax: or(b.FullYMax, fid.YMax+L),
			ZMin: or(b.FullZMin, fid.ZMin-L), ZMax: or(b.FullZMax, fid.ZMax),
		}
		for _, iv := range []struct {
			name   string
			lo, hi float64
		}{{"full_x", full.XMin, full.XMax}, {"full_y", full.YMin, full.YMax}, {"full_z", full.ZMin, full.ZMax}} {
			if err := checkInterval(iv.name, iv.lo, iv.hi); err != nil {
				return nil, err
			}
		}
	}
	v.Fiducial = sim.Bounds{Box: &fid}
	v.Full = sim.Bounds{Box: &full}
	return v, nil
}

// IsCylinder reports whether the volume is cylindrical.
func (v *Volume) IsCylinder() bool {
	return v.Fiducial.Cylinder != nil
}

// FullVolume returns the volume of the sampled region.
func (v *Volume) FullVolume() float64 {
	return boundsVolume(v.Full)
}

// FiducialVolume returns the volume of the fiducial region.
func (v *Volume) FiducialVolume() float64 {
	return boundsVolume(v.Fiducial)
}

func boundsVolume(b sim.Bounds) float64 {
	if c := b.Cylinder; c != nil {
		return math.Pi * (c.RMax*c.RMax - c.RMin*c.RMin) * (c.ZMax - c.ZMin)
	}
	x := b.Box
	return (x.XMax - x.XMin) * (x.YMax - x.YMin) * (x.ZMax - x.ZMin)
}

// Multiplier is the integer factor by which the requested event count is
// inflated so the expected fiducial yield matches the request. Cylinders use
// (rmax/fiducial_rmax)^2 * zmin/fiducial_zmin, boxes the volume ratio.
// Never below 1: a full_* override smaller than the fiducial region still
// yields the requested count, where a plain floor of the ratio would yield 0
// events.
func (v *Volume) Multiplier() int64 {
	if !v.Inflated {
		return 1
	}
	var ratio float64
	if c := v.Full.Cylinder; c != nil {
		f := v.Fiducial.Cylinder
		ratio = (c.RMax / f.RMax) * (c.RMax / f.RMax) * c.ZMin / f.ZMin
	} else {
		ratio = v.FullVolume() / v.FiducialVolume()
	}
	m := int64(ratio)
	if m < 1 || math.IsNaN(ratio) {
		return 1
	}
	return m
}

// ContainsFiducial reports whether p lies inside the fiducial region
// (boundaries included).
func (v *Volume) ContainsFiducial(p sim.Vec3) bool {
	if c := v.Fiducial.Cylinder; c != nil {
		r := p.R()
		return r >= c.RMin && r <= c.RMax && p.Z >= c.ZMin && p.Z <= c.ZMax
	}
	b := v.Fiducial.Box
	return p.X >= b.XMin && p.X <= b.XMax &&
		p.Y >= b.YMin && p.Y <= b.YMax &&
		p.Z >= b.ZMin && p.Z <= b.ZMax
}

// Record writes the resolved bounds and the full volume into attrs.
func (v *Volume) Record(attrs *sim.Attributes) {
	attrs.Fiducial = v.Fiducial
	attrs.Full = v.Full
	attrs.Volume = v.FullVolume()
}

// Place samples n vertices uniformly inside the full region. Cylinders draw
// r^2 uniformly so the areal density is flat.
func Place(rng *rand.Rand, v *Volume, n int64) []sim.Vec3 {
	out := make([]sim.Vec3, n)
	if c := v.Full.Cylinder; c != nil {
		r2min, r2max := c.RMin*c.RMin, c.RMax*c.RMax
		for i := range out {
			r := math.Sqrt(uniform(rng, r2min, r2max))
			phi := uniform(rng, 0, 2*math.Pi)
			z := uniform(rng, c.ZMin, c.ZMax)
			out[i] = sim.Vec3{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: z}
		}
		return out
	}
	b := v.Full.Box
	for i := range out {
		out[i] = sim.Vec3{
			X: uniform(rng, b.XMin, b.XMax),
			Y: uniform(rng, b.YMin, b.YMax),
			Z: uniform(rng, b.ZMin, b.ZMax),
		}
	}
	return out
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// PlaceVertices resolves the volume, inflates the requested event count,
// records the resolved geometry in attrs and samples the vertices.
// attrs.Emax and attrs.NEventsRequested are read; attrs.NEvents, bounds and
// volume are written.
func PlaceVertices(rng *rand.Rand, spec Spec, proposal bool, attrs *sim.Attributes) ([]sim.Vec3, *Volume, error) {
	v, err := Resolve(spec, proposal, attrs.Emax)
	if err != nil {
		return nil, nil, err
	}
	n := attrs.NEventsRequested * v.Multiplier()
	if proposal {
		logrus.Infof("secondary propagation active: full region inflated by %.0f m", v.TrackLength)
		logVolumeChange(v)
		logrus.Infof("increasing number of events from %d to %d", attrs.NEventsRequested, n)
	}
	attrs.NEvents = n
	v.Record(attrs)
	logrus.Debugf("generating %d vertex positions", n)
	return Place(rng, v, n), v, nil
}

func logVolumeChange(v *Volume) {
	if c := v.Full.Cylinder; c != nil {
		f := v.Fiducial.Cylinder
		logrus.Infof("rmax %.1fkm -> %.1fkm, rmin %.1fkm -> %.1fkm", f.RMax/sim.KM, c.RMax/sim.KM, f.RMin/sim.KM, c.RMin/sim.KM)
		logrus.Infof("zmin %.1fkm -> %.1fkm, zmax %.1fkm -> %.1fkm", f.ZMin/sim.KM, c.ZMin/sim.KM, f.ZMax/sim.KM, c.ZMax/sim.KM)
		return
	}
	logrus.Infof("box volume %.3g m^3 -> %.3g m^3", v.FiducialVolume(), v.FullVolume())
}
