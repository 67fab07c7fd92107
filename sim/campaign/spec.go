// Package campaign loads a run spec and drives one generation run
// from flux sampling to the written shards.
package campaign

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/flux"
	"github.com/radiosim/eventgen/sim/geometry"
	"github.com/radiosim/eventgen/sim/interaction"
	"github.com/radiosim/eventgen/sim/secondary"
	"github.com/radiosim/eventgen/sim/shard"
)

// RunSpec is the top-level run configuration.
// Loaded from YAML via LoadRunSpec(path).
type RunSpec struct {
	Mode         string        `yaml:"mode"`
	Seed         int64         `yaml:"seed"`
	NEvents      int64         `yaml:"n_events"`
	StartEventID int64         `yaml:"start_event_id"`
	Energy       EnergySpec    `yaml:"energy"`
	Zenith       *RangeSpec    `yaml:"zenith,omitempty"`  // default [0, pi]
	Azimuth      *RangeSpec    `yaml:"azimuth,omitempty"` // default [0, 2pi)
	Flavors      []int         `yaml:"flavors,omitempty"`
	MuonCharge   string        `yaml:"muon_charge,omitempty"`
	FluxTable    string        `yaml:"flux_table,omitempty"`
	Volume       geometry.Spec `yaml:"volume"`
	Proposal     ProposalSpec  `yaml:"proposal"`
	Output       OutputSpec    `yaml:"output"`
	Metrics      MetricsSpec   `yaml:"metrics"`
}

// EnergySpec configures the primary energy distribution (eV).
type EnergySpec struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Spectrum  string  `yaml:"spectrum"`
	Deposited bool    `yaml:"deposited"`
	// GridPoints overrides the inverse-CDF grid of tabulated spectra.
	GridPoints int `yaml:"grid_points,omitempty"`
}

// RangeSpec is a closed angular interval in radians.
type RangeSpec struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ProposalSpec configures secondary propagation.
type ProposalSpec struct {
	Enabled bool `yaml:"enabled"`
	// Config names the medium profile of the propagator.
	Config     string `yaml:"config,omitempty"`
	Workers    int    `yaml:"workers,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
	// RetryDelayMs is the base backoff between propagator retries.
	RetryDelayMs int `yaml:"retry_delay_ms,omitempty"`
	// Endpoint selects a remote propagator service instead of the built-in one.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// OutputSpec configures where and how shards are written.
type OutputSpec struct {
	Path              string          `yaml:"path"`
	MaxEventsPerShard int             `yaml:"max_events_per_shard,omitempty"` // 0 = single shard
	StartShardIndex   int             `yaml:"start_shard_index,omitempty"`
	S3                *shard.S3Config `yaml:"s3,omitempty"`
}

// MetricsSpec configures the Pushgateway export of run metrics.
type MetricsSpec struct {
	Pushgateway string `yaml:"pushgateway,omitempty"`
	Job         string `yaml:"job,omitempty"`
}

const (
	defaultProposalConfig = "SouthPole"
	defaultMetricsJob     = "eventgen"
	defaultRetryDelayMs   = 200
)

// defaultNeutrinoFlavors is used when a neutrino run lists no flavors.
var defaultNeutrinoFlavors = []int{12, -12, 14, -14, 16, -16}

// validMuonCharges is the registry of surface-muon charge selections.
var validMuonCharges = map[string]bool{"": true, "plus": true, "minus": true, "mix": true}

// LoadRunSpec loads a RunSpec from a YAML file. Unknown keys are rejected.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run spec: %w", err)
	}
	return ParseRunSpec(data)
}

// ParseRunSpec decodes a RunSpec from YAML. Unknown keys are rejected.
func ParseRunSpec(data []byte) (*RunSpec, error) {
	var spec RunSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing run spec: %w", err)
	}
	spec.applyDefaults()
	return &spec, nil
}

func (s *RunSpec) applyDefaults() {
	if s.Zenith == nil {
		s.Zenith = &RangeSpec{Min: 0, Max: math.Pi}
	}
	if s.Azimuth == nil {
		s.Azimuth = &RangeSpec{Min: 0, Max: 2 * math.Pi}
	}
	if s.Proposal.Config == "" {
		s.Proposal.Config = defaultProposalConfig
	}
	if s.Proposal.RetryDelayMs == 0 {
		s.Proposal.RetryDelayMs = defaultRetryDelayMs
	}
	if s.Metrics.Job == "" {
		s.Metrics.Job = defaultMetricsJob
	}
	if s.Mode == string(sim.ModeSurfaceMuon) {
		return
	}
	if len(s.Flavors) == 0 {
		s.Flavors = append([]int(nil), defaultNeutrinoFlavors...)
	}
}

// Validate checks every field of the run spec. It draws no random numbers and
// touches no files other than checking that the flux table exists, so
// configuration errors surface before any sampling.
func (s *RunSpec) Validate() error {
	mode, err := sim.ParseMode(s.Mode)
	if err != nil {
		return err
	}
	if s.NEvents <= 0 {
		return fmt.Errorf("n_events must be positive, got %d", s.NEvents)
	}
	if s.StartEventID < 0 {
		return fmt.Errorf("start_event_id must be non-negative, got %d", s.StartEventID)
	}
	if err := validateFinitePositive("energy.min", s.Energy.Min); err != nil {
		return err
	}
	if err := validateFinitePositive("energy.max", s.Energy.Max); err != nil {
		return err
	}
	if s.Energy.Min > s.Energy.Max {
		return fmt.Errorf("energy.min (%g) above energy.max (%g)", s.Energy.Min, s.Energy.Max)
	}
	if err := s.validateSpectrum(); err != nil {
		return fmt.Errorf("energy.spectrum: %w", err)
	}
	if err := s.Volume.Validate(); err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	if !validMuonCharges[s.MuonCharge] {
		return fmt.Errorf("unknown muon_charge %q; valid: plus, minus, mix", s.MuonCharge)
	}
	if mode == sim.ModeNeutrino && s.MuonCharge != "" {
		return fmt.Errorf("muon_charge is only valid in %s mode", sim.ModeSurfaceMuon)
	}
	if mode == sim.ModeSurfaceMuon && len(s.Flavors) > 0 {
		return fmt.Errorf("flavors are derived from muon_charge in %s mode", sim.ModeSurfaceMuon)
	}
	if mode == sim.ModeSurfaceMuon && !s.Proposal.Enabled {
		return fmt.Errorf("%s mode requires proposal.enabled", sim.ModeSurfaceMuon)
	}
	cfg, err := s.interactionConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.Proposal.Enabled && s.Proposal.Endpoint == "" && !secondary.IsValidProfile(s.Proposal.Config) {
		return fmt.Errorf("unknown proposal config %q; valid: %v", s.Proposal.Config, secondary.ValidProfileNames())
	}
	if s.Proposal.Workers < 0 || s.Proposal.MaxRetries < 0 || s.Proposal.RetryDelayMs < 0 {
		return fmt.Errorf("proposal workers, max_retries and retry_delay_ms must be non-negative")
	}
	if s.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if s.Output.StartShardIndex < 0 {
		return fmt.Errorf("output.start_shard_index must be non-negative, got %d", s.Output.StartShardIndex)
	}
	if s.Output.S3 != nil && s.Output.S3.Bucket == "" {
		return fmt.Errorf("output.s3.bucket is required when output.s3 is set")
	}
	return nil
}

// validateSpectrum checks the spectrum name against a sampler without a
// flux table; a tabulated model is accepted when a table path is configured.
func (s *RunSpec) validateSpectrum() error {
	err := flux.NewSampler(nil).Validate(s.Energy.Spectrum)
	if errors.Is(err, sim.ErrFluxTableMissing) && s.FluxTable != "" {
		if _, statErr := os.Stat(s.FluxTable); statErr != nil {
			return fmt.Errorf("flux_table: %w", statErr)
		}
		return nil
	}
	return err
}

// interactionConfig maps the run spec onto the kinematic configuration.
func (s *RunSpec) interactionConfig() (interaction.Config, error) {
	mode, err := sim.ParseMode(s.Mode)
	if err != nil {
		return interaction.Config{}, err
	}
	cfg := interaction.Config{
		Mode:         mode,
		StartEventID: s.StartEventID,
		Emin:         s.Energy.Min,
		Emax:         s.Energy.Max,
		Spectrum:     s.Energy.Spectrum,
		Deposited:    s.Energy.Deposited,
	}
	if s.Zenith != nil {
		cfg.Thetamin, cfg.Thetamax = s.Zenith.Min, s.Zenith.Max
	}
	if s.Azimuth != nil {
		cfg.Phimin, cfg.Phimax = s.Azimuth.Min, s.Azimuth.Max
	}
	if mode == sim.ModeSurfaceMuon {
		cfg.Flavors, err = interaction.MuonFlavors(s.MuonCharge)
		if err != nil {
			return interaction.Config{}, err
		}
		return cfg, nil
	}
	for _, f := range s.Flavors {
		cfg.Flavors = append(cfg.Flavors, sim.Flavor(f))
	}
	return cfg, nil
}

// validateFinitePositive returns an error if val is not a finite positive number.
func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %g", name, val)
	}
	return nil
}

// logSummary prints the run configuration at info level.
func (s *RunSpec) logSummary() {
	logrus.Infof("mode %s, %d events from id %d, seed %d", s.mode(), s.NEvents, s.StartEventID, s.Seed)
	logrus.Infof("energy [%.3g, %.3g] eV, spectrum %s, deposited %t", s.Energy.Min, s.Energy.Max, s.Energy.Spectrum, s.Energy.Deposited)
	if s.Proposal.Enabled {
		logrus.Infof("secondary propagation enabled (config %s)", s.Proposal.Config)
	}
}

func (s *RunSpec) mode() sim.Mode {
	m, _ := sim.ParseMode(s.Mode)
	return m
}
