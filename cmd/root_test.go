package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/shard"
)

func TestPrintShard_ListsAttributesAndCounts(t *testing.T) {
	// GIVEN a shard with two event groups and three rows
	table := sim.Table{
		{EventGroupID: 3, Flavor: 12, Channel: sim.ChannelCC, ShowerClass: sim.Hadronic, Inelasticity: sim.Some(0.2)},
		{EventGroupID: 3, Flavor: 12, Channel: sim.ChannelCC, ShowerClass: sim.EM, Inelasticity: sim.Some(0.2)},
		{EventGroupID: 5, Flavor: 14, Channel: sim.ChannelNC, ShowerClass: sim.Hadronic, Inelasticity: sim.Some(0.4)},
	}
	table.AssignShowerIDs()
	attrs := &sim.Attributes{RunID: "abc", NEvents: 10, NEventsRequested: 10}
	base := filepath.Join(t.TempDir(), "s.db")
	_, err := (&shard.Writer{}).Write(context.Background(), base, table, attrs, 0, 0)
	require.NoError(t, err)
	c, err := shard.ReadShard(context.Background(), base)
	require.NoError(t, err)

	// WHEN it is printed
	var buf bytes.Buffer
	printShard(&buf, base, c)
	out := buf.String()

	// THEN attributes and counts appear, the header text does not
	assert.Contains(t, out, "run_id")
	assert.Contains(t, out, `"abc"`)
	assert.Contains(t, out, "total_number_of_events")
	assert.Contains(t, out, "rows: 3, event groups: 2")
	assert.NotContains(t, out, "coordinates:")
}
