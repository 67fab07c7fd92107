package sim

import "fmt"

// Flavor is a signed PDG particle code. Particles have positive sign,
// anti-particles negative.
type Flavor int

const (
	Electron         Flavor = 11
	ElectronNeutrino Flavor = 12
	Muon             Flavor = 13
	MuonNeutrino     Flavor = 14
	Tau              Flavor = 15
	TauNeutrino      Flavor = 16
)

// Abs returns the unsigned code.
func (f Flavor) Abs() Flavor {
	if f < 0 {
		return -f
	}
	return f
}

// IsNeutrino reports whether f is one of the three neutrino flavors.
func (f Flavor) IsNeutrino() bool {
	switch f.Abs() {
	case ElectronNeutrino, MuonNeutrino, TauNeutrino:
		return true
	}
	return false
}

// ChargedLepton returns the charged lepton produced in a charged-current
// interaction of neutrino f, keeping the particle/anti-particle sign.
// Returns f unchanged for codes that are not neutrinos.
func (f Flavor) ChargedLepton() Flavor {
	if !f.IsNeutrino() {
		return f
	}
	if f < 0 {
		return f + 1
	}
	return f - 1
}

// Channel is the interaction channel of a primary interaction.
type Channel string

const (
	ChannelCC   Channel = "cc"
	ChannelNC   Channel = "nc"
	ChannelNone Channel = "" // surface muons have no primary interaction
)

// ShowerClass distinguishes the two supported kinds of energy deposit.
type ShowerClass string

const (
	Hadronic ShowerClass = "had"
	EM       ShowerClass = "em"
)

// ParseShowerClass validates a shower class coming from an external
// collaborator. Anything other than "had" or "em" is fatal.
func ParseShowerClass(s string) (ShowerClass, error) {
	switch ShowerClass(s) {
	case Hadronic, EM:
		return ShowerClass(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownShowerClass, s)
}

// ProducesTrack reports whether a row with this flavor and channel produces a
// propagating charged lepton (muon or tau charged current).
func ProducesTrack(f Flavor, c Channel) bool {
	if c != ChannelCC {
		return false
	}
	a := f.Abs()
	return a == MuonNeutrino || a == TauNeutrino
}
