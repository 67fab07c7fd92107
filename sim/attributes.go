package sim

// CylinderBounds describes a cylindrical annulus times a z slab.
type CylinderBounds struct {
	RMin, RMax, ZMin, ZMax float64
}

// BoxBounds describes an axis-aligned box.
type BoxBounds struct {
	XMin, XMax, YMin, YMax, ZMin, ZMax float64
}

// Bounds is a tagged variant: exactly one of Cylinder or Box is set.
type Bounds struct {
	Cylinder *CylinderBounds
	Box      *BoxBounds
}

// Attributes is the run-level metadata attached verbatim to every output
// shard. It is filled in while the run progresses and frozen before the
// shards are written.
type Attributes struct {
	GeneratorVersion     string
	GeneratorVersionHash string
	RunID                string
	Mode                 string

	StartEventID     int64
	NEvents          int64 // event groups actually simulated (after volume inflation)
	NEventsRequested int64

	Flavors            []int
	Emin, Emax         float64
	Spectrum           string
	Thetamin, Thetamax float64
	Phimin, Phimax     float64
	Deposited          bool

	ProposalEnabled bool
	ProposalConfig  string

	Fiducial Bounds
	Full     Bounds
	Volume   float64 // full simulation volume

	// FiducialPlaceholder marks runs whose table holds only the synthesized
	// non-triggering placeholder row.
	FiducialPlaceholder bool
}

// Attribute is one named metadata value. Values are int64, float64, bool,
// string or []int.
type Attribute struct {
	Key   string
	Value any
}

// Pairs flattens the attributes into an ordered list of key/value pairs.
// Optional values are omitted when unset.
func (a *Attributes) Pairs() []Attribute {
	out := []Attribute{
		{"EvtGen_version", a.GeneratorVersion},
		{"EvtGen_version_hash", a.GeneratorVersionHash},
		{"run_id", a.RunID},
		{"mode", a.Mode},
		{"start_event_id", a.StartEventID},
		{"n_events", a.NEvents},
		{"n_events_requested", a.NEventsRequested},
		{"flavors", append([]int(nil), a.Flavors...)},
		{"Emin", a.Emin},
		{"Emax", a.Emax},
		{"spectrum", a.Spectrum},
		{"thetamin", a.Thetamin},
		{"thetamax", a.Thetamax},
		{"phimin", a.Phimin},
		{"phimax", a.Phimax},
		{"deposited", a.Deposited},
		{"proposal", a.ProposalEnabled},
	}
	if a.ProposalEnabled {
		out = append(out, Attribute{"proposal_config", a.ProposalConfig})
	}
	out = append(out, boundsPairs("fiducial_", a.Fiducial)...)
	out = append(out, boundsPairs("", a.Full)...)
	out = append(out, Attribute{"volume", a.Volume})
	if a.FiducialPlaceholder {
		out = append(out, Attribute{"fiducial_placeholder", true})
	}
	return out
}

func boundsPairs(prefix string, b Bounds) []Attribute {
	switch {
	case b.Cylinder != nil:
		c := b.Cylinder
		return []Attribute{
			{prefix + "rmin", c.RMin}, {prefix + "rmax", c.RMax},
			{prefix + "zmin", c.ZMin}, {prefix + "zmax", c.ZMax},
		}
	case b.Box != nil:
		x := b.Box
		return []Attribute{
			{prefix + "xmin", x.XMin}, {prefix + "xmax", x.XMax},
			{prefix + "ymin", x.YMin}, {prefix + "ymax", x.YMax},
			{prefix + "zmin", x.ZMin}, {prefix + "zmax", x.ZMax},
		}
	}
	return nil
}
