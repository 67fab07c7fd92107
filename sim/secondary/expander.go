package secondary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/geometry"
	"github.com/radiosim/eventgen/sim/metrics"
)

// Expander turns the baseline table into the final shower table.
type Expander struct {
	Volume *geometry.Volume
	// Propagator is nil when secondary propagation is disabled; the baseline
	// table then passes through unchanged. Surface-muon mode requires one.
	Propagator Propagator
	// Workers bounds the number of rows expanded concurrently. Values below
	// 1 mean 1.
	Workers int
	Mode    sim.Mode
	Metrics *metrics.Run
}

// Result is the output of Expand.
type Result struct {
	Table sim.Table
	// Placeholder is set when no shower reached the fiducial volume and the
	// table holds a single synthesized non-triggering row.
	Placeholder bool
	// Propagated counts the leptons handed to the propagator.
	Propagated int
}

type rowResult struct {
	rows       []sim.Record
	propagated bool
}

// Expand expands every row independently and merges the results in input
// order, so the output does not depend on Workers. Shower ids of the result
// are assigned densely. The first propagator error cancels the expansion.
func (e *Expander) Expand(ctx context.Context, in sim.Table) (*Result, error) {
	if len(in) == 0 {
		return nil, errors.New("secondary: empty input table")
	}
	if e.Propagator == nil {
		if e.Mode == sim.ModeSurfaceMuon {
			return nil, errors.New("secondary: surface muons cannot be expanded without a propagator")
		}
		out := in.Clone()
		out.AssignShowerIDs()
		return &Result{Table: out}, nil
	}

	workers := e.Workers
	if workers < 1 {
		workers = 1
	}
	results := make([]rowResult, len(in))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range in {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.expandRow(gctx, in[i])
			if err != nil {
				return fmt.Errorf("event group %d: %w", in[i].EventGroupID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(sim.Table, 0, len(in))
	propagated := 0
	for _, r := range results {
		out = append(out, r.rows...)
		if r.propagated {
			propagated++
		}
	}
	logrus.Infof("%d leptons propagated, %d showers in the fiducial volume", propagated, len(out))

	placeholder := false
	if len(out) == 0 {
		out = sim.Table{Placeholder(in[0])}
		placeholder = true
		e.Metrics.IncPlaceholder()
		logrus.Warnf("no shower reached the fiducial volume, writing a single non-triggering placeholder event")
	}
	out.AssignShowerIDs()
	return &Result{Table: out, Placeholder: placeholder, Propagated: propagated}, nil
}

// Placeholder returns the row written when a run has no fiducial shower:
// the first baseline row as a muon neutrino without deposited energy.
func Placeholder(first sim.Record) sim.Record {
	r := first
	r.Flavor = sim.MuonNeutrino
	r.Inelasticity = sim.Some(0)
	r.ShowerEnergy = 0
	return r
}

func (e *Expander) expandRow(ctx context.Context, r sim.Record) (rowResult, error) {
	if e.Mode == sim.ModeSurfaceMuon {
		return e.expandSurfaceMuon(ctx, r)
	}

	var res rowResult
	inserted := false
	if e.Volume.ContainsFiducial(r.Position) {
		res.rows = append(res.rows, r)
		inserted = true
	}
	if !sim.ProducesTrack(r.Flavor, r.Channel) {
		return res, nil
	}

	arrival := sim.ArrivalDirection(r.Zenith, r.Azimuth)
	l := Lepton{
		EventGroupID: r.EventGroupID,
		Energy:       (1 - r.Inelasticity.Or(0)) * r.Energy,
		Code:         r.Flavor.ChargedLepton(),
		Position:     r.Position,
		Direction:    arrival.Scale(-1),
	}
	if !geometry.Intersects(e.Volume, l.Position, l.Direction) {
		return res, nil
	}
	products, err := e.propagate(ctx, l)
	if err != nil {
		return res, err
	}
	res.propagated = true

	index := 2
	for _, p := range products {
		pos := r.Position.Sub(arrival.Scale(p.Distance))
		fiducial := e.Volume.ContainsFiducial(pos)
		e.Metrics.ObserveProduct(string(p.ShowerClass), fiducial)
		if !fiducial {
			continue
		}
		// A secondary inside the volume whose parent interacted outside
		// brings the parent row along so the event group keeps its primary.
		if !inserted {
			res.rows = append(res.rows, r)
			inserted = true
		}
		res.rows = append(res.rows, secondaryRow(r, p, pos, index, sim.Undefined()))
		index++
	}
	return res, nil
}

// expandSurfaceMuon propagates the muon itself; every product is kept.
func (e *Expander) expandSurfaceMuon(ctx context.Context, r sim.Record) (rowResult, error) {
	var res rowResult
	arrival := sim.ArrivalDirection(r.Zenith, r.Azimuth)
	l := Lepton{
		EventGroupID: r.EventGroupID,
		Energy:       r.Energy,
		Code:         r.Flavor,
		Position:     r.Position,
		Direction:    arrival.Scale(-1),
	}
	if !geometry.Intersects(e.Volume, l.Position, l.Direction) {
		return res, nil
	}
	products, err := e.propagate(ctx, l)
	if err != nil {
		return res, err
	}
	res.propagated = true
	for i, p := range products {
		pos := r.Position.Sub(arrival.Scale(p.Distance))
		e.Metrics.ObserveProduct(string(p.ShowerClass), e.Volume.ContainsFiducial(pos))
		res.rows = append(res.rows, secondaryRow(r, p, pos, i+1, sim.Some(1)))
	}
	return res, nil
}

func (e *Expander) propagate(ctx context.Context, l Lepton) ([]Product, error) {
	start := time.Now()
	out, err := e.Propagator.ComputeSecondaries(ctx, []Lepton{l})
	e.Metrics.ObservePropagation(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: expected 1 product list, got %d", ErrPropagatorFailed, len(out))
	}
	return out[0], nil
}

// secondaryRow derives a shower row from its parent. Vertex time is the
// vacuum light travel time along the track.
func secondaryRow(parent sim.Record, p Product, pos sim.Vec3, index int, inelasticity sim.OptFloat) sim.Record {
	r := parent
	r.InteractionIndex = index
	r.Position = pos
	r.VertexTime = p.Distance / sim.SpeedOfLight
	r.ShowerEnergy = p.Energy
	r.ShowerClass = p.ShowerClass
	r.Inelasticity = inelasticity
	r.Flavor = p.Code
	return r
}
