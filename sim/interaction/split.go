package interaction

import "github.com/radiosim/eventgen/sim"

// SplitElectronCC returns a new table in which every electron-neutrino
// charged-current row is immediately followed by its electromagnetic
// shower: a copy of the row with shower class EM and shower energy
// (1-y)*E. Relative order of the input rows is preserved.
func SplitElectronCC(in sim.Table) sim.Table {
	out := make(sim.Table, 0, len(in))
	for _, r := range in {
		out = append(out, r)
		if r.Channel != sim.ChannelCC || r.Flavor.Abs() != sim.ElectronNeutrino {
			continue
		}
		em := r
		em.ShowerClass = sim.EM
		em.ShowerEnergy = (1 - r.Inelasticity.Or(0)) * r.Energy
		out = append(out, em)
	}
	return out
}
