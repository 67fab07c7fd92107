package sim

import (
	"math"
	"slices"
)

// Vec3 is a cartesian vector in the local coordinate system: origin at the
// surface, x towards Easting, y towards Northing, z upwards.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Norm() float64        { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// R returns the distance from the z axis.
func (v Vec3) R() float64 { return math.Hypot(v.X, v.Y) }

// ArrivalDirection returns the unit vector pointing to where a particle came
// from (zenith 0 = upwards, 90deg = horizon, 180deg = downwards).
// The propagation direction is its negation.
func ArrivalDirection(zenith, azimuth float64) Vec3 {
	st, ct := math.Sincos(zenith)
	sp, cp := math.Sincos(azimuth)
	return Vec3{st * cp, st * sp, ct}
}

// OptFloat is a float that may be undefined (e.g. the inelasticity of a
// secondary shower, which has no primary interaction of its own).
type OptFloat struct {
	Value float64
	Valid bool
}

// Some returns a defined OptFloat.
func Some(v float64) OptFloat { return OptFloat{Value: v, Valid: true} }

// Undefined returns an OptFloat without value.
func Undefined() OptFloat { return OptFloat{} }

// Or returns the value if defined, otherwise def.
func (o OptFloat) Or(def float64) float64 {
	if o.Valid {
		return o.Value
	}
	return def
}

// Record is one shower record: one energy deposit associated with an event
// group. The event-group fields are repeated on every row of the group.
type Record struct {
	// Event group
	EventGroupID int64
	Flavor       Flavor
	Channel      Channel
	Energy       float64 // primary energy
	Zenith       float64
	Azimuth      float64
	Inelasticity OptFloat

	// Shower
	InteractionIndex int // 1 = primary, >= 2 secondary
	Position         Vec3
	VertexTime       float64 // relative to the primary interaction
	ShowerEnergy     float64
	ShowerClass      ShowerClass
	ShowerID         int64 // assigned once the final table is frozen
}

// Table is an ordered sequence of records. Event-group ids are non-decreasing
// along the table.
type Table []Record

// EventGroupIDs returns the distinct event-group ids in ascending order.
func (t Table) EventGroupIDs() []int64 {
	ids := make([]int64, len(t))
	for i, r := range t {
		ids[i] = r.EventGroupID
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// AssignShowerIDs numbers the rows densely from zero in table order.
func (t Table) AssignShowerIDs() {
	for i := range t {
		t[i].ShowerID = int64(i)
	}
}

// Clone returns a copy of the table that shares no backing storage.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}
