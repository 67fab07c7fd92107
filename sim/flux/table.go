package flux

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"

	"github.com/radiosim/eventgen/sim"
)

// Table is a read-only tabulated flux, interpolated log-log between its
// nodes and zero outside its energy range. It is loaded once and shared by
// every sampler that needs it.
type Table struct {
	energies []float64
	flux     []float64
	emin     float64
	emax     float64
	logLog   interp.PiecewiseLinear
}

// NewTable builds a table from energies (eV, strictly increasing) and flux
// values in base units. Nodes with non-positive flux cannot be represented
// in log space and are skipped.
func NewTable(energies, flux []float64) (*Table, error) {
	if len(energies) != len(flux) {
		return nil, fmt.Errorf("flux table: %d energies but %d flux values", len(energies), len(flux))
	}
	var xs, ys []float64
	for i, e := range energies {
		if math.IsNaN(e) || e <= 0 {
			return nil, fmt.Errorf("flux table: energy[%d] = %g must be positive", i, e)
		}
		if i > 0 && e <= energies[i-1] {
			return nil, fmt.Errorf("flux table: energies must be strictly increasing (index %d)", i)
		}
		if !(flux[i] > 0) || math.IsInf(flux[i], 0) {
			continue
		}
		xs = append(xs, math.Log10(e))
		ys = append(ys, math.Log10(flux[i]))
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("flux table: need at least 2 nodes with positive flux, got %d", len(xs))
	}
	t := &Table{
		energies: append([]float64(nil), energies...),
		flux:     append([]float64(nil), flux...),
		emin:     math.Pow(10, xs[0]),
		emax:     math.Pow(10, xs[len(xs)-1]),
	}
	if err := t.logLog.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("flux table: %w", err)
	}
	return t, nil
}

// LoadTable reads a cosmogenic flux table. The file holds two whitespace
// separated rows: energies in GeV, and E^2 * J in GeV cm^-2 s^-1 sr^-1.
// Lines starting with '#' are ignored.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading flux table: %w", err)
	}
	defer func() { _ = f.Close() }()

	var rows [][]float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing flux table %s row %d column %d: %w", path, len(rows)+1, i+1, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading flux table: %w", err)
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("flux table %s: expected 2 rows (energy, E^2 flux), got %d", path, len(rows))
	}

	if len(rows[1]) != len(rows[0]) {
		return nil, fmt.Errorf("flux table %s: %d energies but %d flux values", path, len(rows[0]), len(rows[1]))
	}

	energies := make([]float64, len(rows[0]))
	flux := make([]float64, len(rows[0]))
	unit := sim.GeV / (sim.CM * sim.CM) / sim.S
	for i, e := range rows[0] {
		energies[i] = e * sim.GeV
		flux[i] = rows[1][i] * unit / (energies[i] * energies[i])
	}
	return NewTable(energies, flux)
}

// Flux evaluates the table at energy e.
func (t *Table) Flux(e float64) float64 {
	if e < t.emin || e > t.emax {
		return 0
	}
	return math.Pow(10, t.logLog.Predict(math.Log10(e)))
}

// Range returns the energy interval covered by the table.
func (t *Table) Range() (emin, emax float64) {
	return t.emin, t.emax
}

// Len returns the number of tabulated nodes.
func (t *Table) Len() int {
	return len(t.energies)
}
