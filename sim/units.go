package sim

// Base units: energies in eV, lengths in metres, times in nanoseconds,
// angles in radians. Multiply a value by a unit to convert into base units,
// divide to convert out of them.
const (
	EV  = 1.0
	KeV = 1e3 * EV
	MeV = 1e6 * EV
	GeV = 1e9 * EV
	TeV = 1e12 * EV
	PeV = 1e15 * EV
	EeV = 1e18 * EV

	M  = 1.0
	CM = 1e-2 * M
	KM = 1e3 * M

	NS = 1.0
	FS = 1e-6 * NS
	S  = 1e9 * NS

	Rad = 1.0
	Deg = 0.017453292519943295 * Rad
)

// SpeedOfLight is the vacuum speed of light in base units (m/ns).
const SpeedOfLight = 299792458 * M / S
