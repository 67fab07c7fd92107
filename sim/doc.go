// Package sim holds the shared data model of the event generator.
//
// # Reading Guide
//
// Start with these files:
//   - record.go: Record and Table, one row per shower of an event group
//   - attributes.go: run-level metadata attached to every output shard
//   - rng.go: PartitionedRNG, one deterministic stream per generation stage
//
// # Architecture
//
// The sim package defines the types shared by the pipeline stages; the
// stages live in sub-packages and run in this order:
//   - sim/flux/: primary energies from named spectra
//   - sim/geometry/: fiducial and full volumes, vertex placement
//   - sim/interaction/: the baseline table of primary interactions
//   - sim/secondary/: lepton propagation and secondary showers
//   - sim/shard/: sharded SQLite output, manifest and publishing
//   - sim/campaign/: run spec loading and the end-to-end run
//   - sim/metrics/: per-run Prometheus metrics
//
// All quantities use the base units of units.go: eV, metre, nanosecond and
// radian.
package sim
