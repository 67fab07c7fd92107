package sim

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible generation run.
// Two runs with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical event tables.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemFlux is the RNG subsystem for energy sampling.
	// Uses master seed directly so a bare --seed reproduces energies.
	SubsystemFlux = "flux"

	// SubsystemGeometry is the RNG subsystem for vertex placement.
	SubsystemGeometry = "geometry"

	// SubsystemDirection is the RNG subsystem for arrival directions.
	SubsystemDirection = "direction"

	// SubsystemKinematics is the RNG subsystem for flavor, channel and inelasticity.
	SubsystemKinematics = "kinematics"

	// SubsystemPropagation is the RNG subsystem for the built-in lepton propagator.
	SubsystemPropagation = "propagation"
)

// SubsystemLepton returns the subsystem name for the lepton of one event group.
// Each lepton gets its own stream so propagation results do not depend on
// the order (or the goroutine) in which leptons are processed.
func SubsystemLepton(eventGroupID int64) string {
	return fmt.Sprintf("%s_%d", SubsystemPropagation, eventGroupID)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemFlux: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR murmur3_64(subsystemName, nameHashSeed)
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
// Use DeriveSeed for streams that are created on worker goroutines.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(DeriveSeed(p.key, name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// nameHashSeed keys the subsystem name hash. Unseeded murmur3 hashes the
// empty name to 0, which would alias the master seed.
const nameHashSeed uint32 = 0x9747b28c

// DeriveSeed returns the seed PartitionedRNG would use for a subsystem.
// Pure function of its inputs, safe to call from any goroutine.
func DeriveSeed(key SimulationKey, name string) int64 {
	if name == SubsystemFlux {
		return int64(key)
	}
	return int64(key) ^ int64(murmur3.Sum64WithSeed([]byte(name), nameHashSeed))
}

// NewRand creates a *rand.Rand for a derived subsystem seed.
func NewRand(key SimulationKey, name string) *rand.Rand {
	return rand.New(rand.NewSource(DeriveSeed(key, name)))
}

// String implements fmt.Stringer.
func (k SimulationKey) String() string {
	return strconv.FormatInt(int64(k), 10)
}
