package shard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/metrics"
)

func sampleTable(n int) sim.Table {
	t := make(sim.Table, 0, n)
	for i := 0; i < n; i++ {
		r := sim.Record{
			EventGroupID:     int64(i),
			Flavor:           14,
			Channel:          sim.ChannelCC,
			Energy:           1e18 + float64(i),
			Zenith:           0.5,
			Azimuth:          1.5,
			Inelasticity:     sim.Some(0.3),
			InteractionIndex: 1,
			Position:         sim.Vec3{X: float64(i), Y: -float64(i), Z: -100},
			ShowerEnergy:     0.3e18,
			ShowerClass:      sim.Hadronic,
		}
		t = append(t, r)
		if i%10 == 0 {
			s := r
			s.InteractionIndex = 2
			s.Flavor = 11
			s.Inelasticity = sim.Undefined()
			s.ShowerClass = sim.EM
			s.VertexTime = 42
			t = append(t, s)
		}
	}
	t.AssignShowerIDs()
	return t
}

func sampleAttrs(n int64) *sim.Attributes {
	return &sim.Attributes{
		GeneratorVersion: "test",
		RunID:            "run-1",
		Mode:             string(sim.ModeNeutrino),
		NEvents:          n,
		NEventsRequested: n,
		Flavors:          []int{12, 14},
		Emin:             1e17,
		Emax:             1e19,
		Spectrum:         "log_uniform",
		Fiducial:         sim.Bounds{Box: &sim.BoxBounds{XMin: -1, XMax: 1, YMin: -1, YMax: 1, ZMin: -1, ZMax: 0}},
		Full:             sim.Bounds{Box: &sim.BoxBounds{XMin: -1, XMax: 1, YMin: -1, YMax: 1, ZMin: -1, ZMax: 0}},
		Volume:           4,
	}
}

func TestWriter_WritesReadableShardsAndManifest(t *testing.T) {
	// GIVEN 100 event groups (110 rows) split 40 per shard
	dir := t.TempDir()
	base := filepath.Join(dir, "out", "events.db")
	table := sampleTable(100)
	attrs := sampleAttrs(100)
	m := metrics.NewRun()
	w := &Writer{Metrics: m}

	// WHEN the table is written
	manifest, err := w.Write(context.Background(), base, table, attrs, 40, 0)
	require.NoError(t, err)

	// THEN three shards exist and together hold the whole table
	require.Len(t, manifest.Shards, 3)
	var back sim.Table
	var total int64
	for i, info := range manifest.Shards {
		c, err := ReadShard(context.Background(), info.Path)
		require.NoError(t, err)
		back = append(back, c.Table...)
		assert.Len(t, c.Table, info.Rows)

		n, err := c.Int64("n_events")
		require.NoError(t, err)
		assert.Equal(t, info.NEvents, n)
		total += n

		grand, err := c.Int64("total_number_of_events")
		require.NoError(t, err)
		assert.Equal(t, int64(100), grand)

		major, err := c.Int64("VERSION_MAJOR")
		require.NoError(t, err)
		assert.Equal(t, int64(VersionMajor), major)

		var header string
		require.NoError(t, c.Lookup("header", &header))
		assert.Equal(t, Header, header)

		var flavors []int
		require.NoError(t, c.Lookup("flavors", &flavors))
		assert.Equal(t, []int{12, 14}, flavors, "shard %d", i)
	}
	assert.Equal(t, int64(100), total)
	if diff := cmp.Diff(table, back); diff != "" {
		t.Errorf("table round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ShardsWritten))

	// AND no temporary file remains
	leftovers, err := filepath.Glob(filepath.Join(dir, "out", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	// AND the manifest on disk verifies
	loaded, err := ReadManifest(base)
	require.NoError(t, err)
	assert.Equal(t, manifest, loaded)
	assert.NoError(t, loaded.Verify())
}

func TestWriter_AttributeOrderIsStable(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "single.db")
	manifest, err := (&Writer{}).Write(context.Background(), base, sampleTable(5), sampleAttrs(5), 0, 0)
	require.NoError(t, err)
	require.Len(t, manifest.Shards, 1)
	assert.Equal(t, base, manifest.Shards[0].Path)

	c, err := ReadShard(context.Background(), base)
	require.NoError(t, err)
	keys := make([]string, len(c.Attributes))
	for i, a := range c.Attributes {
		keys[i] = a.Key
	}
	assert.Equal(t, []string{"VERSION_MAJOR", "VERSION_MINOR", "header", "EvtGen_version"}, keys[:4])
	assert.Equal(t, "total_number_of_events", keys[len(keys)-1])
	assert.Contains(t, keys, "n_events")
	assert.Contains(t, keys, "fiducial_xmin")
	assert.Contains(t, keys, "xmin")
}

func TestWriter_OverwritesExistingRun(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "again.db")
	w := &Writer{}
	_, err := w.Write(context.Background(), base, sampleTable(5), sampleAttrs(5), 0, 0)
	require.NoError(t, err)
	_, err = w.Write(context.Background(), base, sampleTable(3), sampleAttrs(3), 0, 0)
	require.NoError(t, err)
	c, err := ReadShard(context.Background(), base)
	require.NoError(t, err)
	assert.Len(t, c.Table, 4)
}

func TestManifest_Verify_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "events.db")
	manifest, err := (&Writer{}).Write(context.Background(), base, sampleTable(10), sampleAttrs(10), 4, 0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(manifest.Shards[1].Path, []byte("truncated"), 0o644))
	assert.ErrorIs(t, manifest.Verify(), ErrIncompleteRun)

	require.NoError(t, os.Remove(manifest.Shards[2].Path))
	assert.ErrorIs(t, manifest.Verify(), ErrIncompleteRun)
}

func TestReadManifest_MissingMeansIncomplete(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "never-written.db"))
	assert.ErrorIs(t, err, ErrIncompleteRun)
}

func TestReadShard_Missing(t *testing.T) {
	_, err := ReadShard(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Writer{}).Write(ctx, filepath.Join(t.TempDir(), "x.db"), sampleTable(3), sampleAttrs(3), 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
