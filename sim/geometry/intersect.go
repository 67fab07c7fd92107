package geometry

import (
	"math"

	"github.com/radiosim/eventgen/sim"
)

// Intersects reports whether the ray origin + t*dir (t >= 0) crosses the
// fiducial region.
//
// Only boxes are tested (slab method). Cylindrical volumes always report
// true: the cylinder test is not implemented, so every lepton of a
// cylindrical run is propagated.
func Intersects(v *Volume, origin, dir sim.Vec3) bool {
	b := v.Fiducial.Box
	if b == nil {
		return true
	}
	lo := [3]float64{b.XMin, b.YMin, b.ZMin}
	hi := [3]float64{b.XMax, b.YMax, b.ZMax}
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}

	tmin, tmax := math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		inv := 1 / d[axis]
		t1 := (lo[axis] - o[axis]) * inv
		t2 := (hi[axis] - o[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		// NaN (origin on a face of a slab the ray runs parallel to) fails
		// both comparisons and leaves the interval unchanged.
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return false
		}
	}
	// Both crossings behind the vertex: the box lies behind the lepton.
	return tmax >= 0
}
