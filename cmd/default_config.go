package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/radiosim/eventgen/sim/campaign"
)

// DefaultRunSpec is the annotated run spec written by `eventgen init`.
// It must always pass campaign.ParseRunSpec and RunSpec.Validate.
const DefaultRunSpec = `# eventgen run spec. Units: eV, metre, radian.
mode: neutrino            # neutrino | surface_muon
seed: 42
# With proposal enabled the requested count is multiplied by the full/fiducial
# volume ratio, which grows with energy.max: about 79x for this volume at
# 1e17 eV, about 11700x at 1e19 eV.
n_events: 1000
start_event_id: 0
energy:
  min: 1.0e16
  max: 1.0e17
  spectrum: log_uniform   # log_uniform | E-<gamma> | IceCube-nu-2017 | GZK-1 | GZK-1+IceCube-nu-2017
  deposited: false
zenith: {min: 0, max: 3.141592653589793}
azimuth: {min: 0, max: 6.283185307179586}
flavors: [12, -12, 14, -14, 16, -16]
# flux_table: gzk1.txt    # required by the GZK-1 spectra
volume:
  cylinder:
    fiducial_rmin: 0
    fiducial_rmax: 4000
    fiducial_zmin: -2700
    fiducial_zmax: 0
proposal:
  enabled: true
  config: SouthPole       # SouthPole | Greenland | MooresBay | InfIce
  workers: 4
  max_retries: 2
output:
  path: events.db
  max_events_per_shard: 0
  start_shard_index: 0
metrics:
  job: eventgen
`

var initForce bool

// initCmd writes DefaultRunSpec to a file
var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write an annotated default run spec",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeDefaultSpec(args[0], initForce); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Infof("wrote default run spec to %s", args[0])
	},
}

// writeDefaultSpec writes DefaultRunSpec to path, refusing to replace an
// existing file unless force is set.
func writeDefaultSpec(path string, force bool) error {
	if _, err := campaign.ParseRunSpec([]byte(DefaultRunSpec)); err != nil {
		return fmt.Errorf("built-in default spec is broken: %w", err)
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return os.WriteFile(path, []byte(DefaultRunSpec), 0o644)
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}
