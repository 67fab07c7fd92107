package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/flux"
	"github.com/radiosim/eventgen/sim/geometry"
	"github.com/radiosim/eventgen/sim/interaction"
	"github.com/radiosim/eventgen/sim/metrics"
	"github.com/radiosim/eventgen/sim/secondary"
	"github.com/radiosim/eventgen/sim/shard"
)

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Attributes *sim.Attributes
	Table      sim.Table
	Manifest   *shard.Manifest
	// Placeholder is set when the table holds only the non-triggering
	// placeholder row.
	Placeholder bool
	Metrics     *metrics.Run
}

// Option customizes a run.
type Option func(*runner)

// WithPropagator replaces the propagator selected by the run spec.
func WithPropagator(p secondary.Propagator) Option {
	return func(r *runner) { r.propagator = p }
}

// WithPublisher replaces the S3 publisher selected by the run spec.
func WithPublisher(p shard.Publisher) Option {
	return func(r *runner) { r.publisher = p }
}

// WithRunID fixes the run id instead of generating a random one.
func WithRunID(id string) Option {
	return func(r *runner) { r.runID = id }
}

type runner struct {
	spec       RunSpec
	runID      string
	propagator secondary.Propagator
	publisher  shard.Publisher
	metrics    *metrics.Run
}

// Run executes one generation run: validate, sample, expand, write.
// Two runs of the same spec produce identical tables.
func Run(ctx context.Context, spec *RunSpec, opts ...Option) (*Result, error) {
	r := &runner{spec: *spec, metrics: metrics.NewRun()}
	r.spec.applyDefaults()
	for _, o := range opts {
		o(r)
	}
	if err := r.spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run spec: %w", err)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.spec.logSummary()
	return r.run(ctx)
}

func (r *runner) run(ctx context.Context) (*Result, error) {
	s := &r.spec
	m := r.metrics
	mode := s.mode()
	rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed))
	attrs := r.attributes()

	sampler, err := r.sampler()
	if err != nil {
		return nil, err
	}

	// Surface muons start at the surface; only neutrino runs inflate the
	// volume for secondaries.
	start := time.Now()
	positions, vol, err := geometry.PlaceVertices(rngs.ForSubsystem(sim.SubsystemGeometry), s.Volume,
		s.Proposal.Enabled && mode == sim.ModeNeutrino, attrs)
	if err != nil {
		return nil, fmt.Errorf("placing vertices: %w", err)
	}
	m.ObserveStage("place", start)

	start = time.Now()
	cfg, err := s.interactionConfig()
	if err != nil {
		return nil, err
	}
	table, err := interaction.Generate(rngs, sampler, cfg, positions)
	if err != nil {
		return nil, fmt.Errorf("generating interactions: %w", err)
	}
	if mode == sim.ModeNeutrino {
		table = interaction.SplitElectronCC(table)
	}
	m.AddEventGroups(attrs.NEvents)
	m.ObserveStage("generate", start)

	start = time.Now()
	prop, err := r.selectPropagator()
	if err != nil {
		return nil, err
	}
	expander := &secondary.Expander{
		Volume:     vol,
		Propagator: prop,
		Workers:    s.Proposal.Workers,
		Mode:       mode,
		Metrics:    m,
	}
	expanded, err := expander.Expand(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("expanding secondaries: %w", err)
	}
	attrs.FiducialPlaceholder = expanded.Placeholder
	m.AddShowers(len(expanded.Table))
	m.ObserveStage("expand", start)

	start = time.Now()
	writer := &shard.Writer{Metrics: m}
	manifest, err := writer.Write(ctx, s.Output.Path, expanded.Table, attrs,
		s.Output.MaxEventsPerShard, s.Output.StartShardIndex)
	if err != nil {
		return nil, fmt.Errorf("writing shards: %w", err)
	}
	m.ObserveStage("write", start)

	if err := r.publish(ctx, manifest); err != nil {
		return nil, err
	}
	if s.Metrics.Pushgateway != "" {
		if err := m.Push(ctx, s.Metrics.Pushgateway, s.Metrics.Job, r.runID); err != nil {
			logrus.Warnf("pushing run metrics: %v", err)
		}
	}

	return &Result{
		RunID:       r.runID,
		Attributes:  attrs,
		Table:       expanded.Table,
		Manifest:    manifest,
		Placeholder: expanded.Placeholder,
		Metrics:     m,
	}, nil
}

// attributes fills the run-level attributes known before sampling.
func (r *runner) attributes() *sim.Attributes {
	s := &r.spec
	cfg, _ := s.interactionConfig()
	flavors := make([]int, len(cfg.Flavors))
	for i, f := range cfg.Flavors {
		flavors[i] = int(f)
	}
	attrs := &sim.Attributes{
		GeneratorVersion:     sim.Version,
		GeneratorVersionHash: sim.VersionHash(),
		RunID:                r.runID,
		Mode:                 string(cfg.Mode),
		StartEventID:         s.StartEventID,
		NEventsRequested:     s.NEvents,
		Flavors:              flavors,
		Emin:                 s.Energy.Min,
		Emax:                 s.Energy.Max,
		Spectrum:             s.Energy.Spectrum,
		Thetamin:             cfg.Thetamin,
		Thetamax:             cfg.Thetamax,
		Phimin:               cfg.Phimin,
		Phimax:               cfg.Phimax,
		Deposited:            s.Energy.Deposited,
		ProposalEnabled:      s.Proposal.Enabled,
	}
	if s.Proposal.Enabled {
		attrs.ProposalConfig = s.Proposal.Config
	}
	return attrs
}

// sampler builds the energy sampler, loading the flux table when configured.
func (r *runner) sampler() (*flux.Sampler, error) {
	var table *flux.Table
	if path := r.spec.FluxTable; path != "" {
		var err error
		table, err = flux.LoadTable(path)
		if err != nil {
			return nil, err
		}
		lo, hi := table.Range()
		logrus.Debugf("loaded flux table %s: %d nodes over [%.3g, %.3g] eV", path, table.Len(), lo, hi)
	}
	var opts []flux.Option
	if n := r.spec.Energy.GridPoints; n > 0 {
		opts = append(opts, flux.WithGridPoints(n))
	}
	return flux.NewSampler(table, opts...), nil
}

// selectPropagator returns nil when propagation is disabled.
func (r *runner) selectPropagator() (secondary.Propagator, error) {
	p := r.spec.Proposal
	if !p.Enabled {
		return nil, nil
	}
	base := r.propagator
	switch {
	case base != nil:
	case p.Endpoint != "":
		base = secondary.NewHTTPPropagator(p.Endpoint, p.Config)
		logrus.Infof("using remote propagator at %s", p.Endpoint)
	default:
		sp, err := secondary.NewStochasticPropagator(sim.NewSimulationKey(r.spec.Seed), p.Config)
		if err != nil {
			return nil, err
		}
		base = sp
	}
	if p.MaxRetries == 0 {
		return base, nil
	}
	return secondary.WithRetry(base, p.MaxRetries, time.Duration(p.RetryDelayMs)*time.Millisecond), nil
}

// publish uploads the run when an S3 destination or publisher is configured.
func (r *runner) publish(ctx context.Context, m *shard.Manifest) error {
	pub := r.publisher
	if pub == nil && r.spec.Output.S3 != nil {
		p, err := shard.NewS3Publisher(ctx, *r.spec.Output.S3)
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		pub = p
	}
	if pub == nil {
		return nil
	}
	start := time.Now()
	if err := shard.PublishRun(ctx, pub, m); err != nil {
		return err
	}
	r.metrics.ObserveStage("publish", start)
	return nil
}
