// Package shard partitions the final shower table into output files and
// reads them back.
//
// Shards split the table by event group: an event group never spans two
// shards. Each shard records how many simulated event groups it stands for,
// which differs from its row count because event groups without a fiducial
// shower leave no rows.
package shard

import (
	"errors"
	"fmt"

	"github.com/radiosim/eventgen/sim"
)

// ErrEmptyTable is returned when asked to shard a table without rows.
var ErrEmptyTable = errors.New("shard: empty table")

// Shard is the layout of one output file.
type Shard struct {
	Index   int    // file index, including the start offset
	Path    string // final file name
	Start   int    // first row (inclusive)
	Stop    int    // last row (exclusive)
	FirstID int64  // first event-group id claimed
	LastID  int64  // last event-group id claimed
	NEvents int64  // simulated event groups represented by this shard
}

// Rows returns the number of table rows in the shard.
func (s Shard) Rows() int { return s.Stop - s.Start }

// Plan computes the shard layout. Shard i claims the event-group ids ranked
// [i*K, (i+1)*K) among the distinct ids of the table; K <= 0 claims all ids.
// Rows run from the previous shard's stop to one past the last row of the
// shard's last id. The per-shard event count follows the position of the
// shard (single, first, interior or last), so the counts add up to
// attrs.NEvents.
func Plan(table sim.Table, attrs *sim.Attributes, maxPerShard, startShardIndex int, base string) ([]Shard, error) {
	if len(table) == 0 {
		return nil, ErrEmptyTable
	}
	ids := table.EventGroupIDs()
	k := maxPerShard
	if k <= 0 {
		k = len(ids)
	}
	claim := func(i int) []int64 {
		lo := i * k
		if lo >= len(ids) {
			return nil
		}
		return ids[lo:min(lo+k, len(ids))]
	}

	var shards []Shard
	start := 0
	var lastPrevious int64
	for i := 0; ; i++ {
		claimed := claim(i)
		if len(claimed) == 0 {
			break
		}
		first, last := claimed[0], claimed[len(claimed)-1]
		stop := lastRowOf(table, last) + 1
		if stop <= start {
			return nil, fmt.Errorf("shard: event group %d precedes row %d; table is not ordered by event group", last, start)
		}

		more := len(claim(i+1)) > 0
		var n int64
		switch {
		case i == 0 && !more: // single shard
			n = attrs.NEvents
		case !more: // last shard
			n = attrs.NEvents - (lastPrevious + 1) + attrs.StartEventID
		case i == 0: // first shard
			n = last - attrs.StartEventID + 1
		default: // interior shard
			n = last - lastPrevious
		}

		path := base
		if i > 0 || more {
			path = fmt.Sprintf("%s.part%04d", base, startShardIndex+i)
		}
		shards = append(shards, Shard{
			Index:   startShardIndex + i,
			Path:    path,
			Start:   start,
			Stop:    stop,
			FirstID: first,
			LastID:  last,
			NEvents: n,
		})

		start = stop
		lastPrevious = last
		// Compares an id with a count: only meaningful when ids run from 0.
		if last == attrs.NEvents {
			break
		}
	}
	return shards, nil
}

// lastRowOf returns the index of the last row belonging to event group id,
// or -1.
func lastRowOf(table sim.Table, id int64) int {
	for i := len(table) - 1; i >= 0; i-- {
		if table[i].EventGroupID == id {
			return i
		}
	}
	return -1
}
