package shard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/radiosim/eventgen/sim"
	"github.com/radiosim/eventgen/sim/metrics"
)

// Info describes one written shard.
type Info struct {
	Path    string `json:"path"`
	Index   int    `json:"index"`
	Rows    int    `json:"rows"`
	NEvents int64  `json:"n_events"`
	FirstID int64  `json:"first_event_group_id"`
	LastID  int64  `json:"last_event_group_id"`
	Size    int64  `json:"size"`
	SHA256  string `json:"sha256"`
}

// Writer writes shard files and the run manifest.
type Writer struct {
	Metrics *metrics.Run
}

// Write plans the shard layout, writes every shard and finally the manifest
// at ManifestPath(base). Each shard is written under a temporary name and
// renamed when complete, so a file under its final name is always whole.
// The table must be frozen: shower ids assigned, no further changes.
func (w *Writer) Write(ctx context.Context, base string, table sim.Table, attrs *sim.Attributes, maxPerShard, startShardIndex int) (*Manifest, error) {
	shards, err := Plan(table, attrs, maxPerShard, startShardIndex, base)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(base); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	logrus.Infof("saving %d events in %d shard(s)", attrs.NEvents, len(shards))

	m := &Manifest{
		RunID:               attrs.RunID,
		Base:                base,
		TotalNumberOfEvents: attrs.NEvents,
	}
	var written int64
	for _, s := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := w.writeShard(ctx, s, table, attrs)
		if err != nil {
			return nil, fmt.Errorf("shard %s: %w", s.Path, err)
		}
		logrus.Infof("wrote %s with %d events (id %d - %d) and %d entries",
			s.Path, s.NEvents, s.FirstID, s.LastID, s.Rows())
		w.Metrics.AddShard(info.Size)
		written += s.NEvents
		m.Shards = append(m.Shards, info)
	}
	logrus.Infof("wrote %d events in total", written)

	if err := m.write(ManifestPath(base)); err != nil {
		return nil, err
	}
	return m, nil
}

func (w *Writer) writeShard(ctx context.Context, s Shard, table sim.Table, attrs *sim.Attributes) (Info, error) {
	tmp := s.Path + ".tmp"
	if err := writeContainer(ctx, tmp, table[s.Start:s.Stop], containerAttributes(attrs, s.NEvents)); err != nil {
		_ = os.Remove(tmp)
		return Info{}, err
	}
	size, sum, err := digest(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return Info{}, err
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return Info{}, fmt.Errorf("rename: %w", err)
	}
	return Info{
		Path:    s.Path,
		Index:   s.Index,
		Rows:    s.Rows(),
		NEvents: s.NEvents,
		FirstID: s.FirstID,
		LastID:  s.LastID,
		Size:    size,
		SHA256:  sum,
	}, nil
}

// digest returns the size and hex SHA-256 of a file.
func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash %s: %w", path, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
