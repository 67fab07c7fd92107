package sim

import "fmt"

// Mode selects what kind of primary particle a run simulates.
type Mode string

const (
	// ModeNeutrino simulates neutrino interactions inside the volume.
	ModeNeutrino Mode = "neutrino"
	// ModeSurfaceMuon simulates atmospheric muons entering through the surface.
	ModeSurfaceMuon Mode = "surface_muon"
)

// validModes is the registry of accepted run modes.
var validModes = map[Mode]bool{ModeNeutrino: true, ModeSurfaceMuon: true}

// ParseMode validates a mode name. The empty string means ModeNeutrino.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeNeutrino, nil
	}
	m := Mode(s)
	if !validModes[m] {
		return "", fmt.Errorf("unknown mode %q; valid modes: %s, %s", s, ModeNeutrino, ModeSurfaceMuon)
	}
	return m, nil
}
