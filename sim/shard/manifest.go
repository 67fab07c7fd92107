package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrIncompleteRun is returned when a run's shards do not match its manifest.
var ErrIncompleteRun = errors.New("shard: incomplete run")

// Manifest lists the shards of a run. It is written after the last shard,
// so a run without a manifest did not finish and must be regenerated.
type Manifest struct {
	RunID               string `json:"run_id"`
	Base                string `json:"base"`
	TotalNumberOfEvents int64  `json:"total_number_of_events"`
	Shards              []Info `json:"shards"`
}

// ManifestPath returns the manifest file name for a shard base name.
func ManifestPath(base string) string {
	return base + ".manifest.json"
}

func (m *Manifest) write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the run with the given base name.
func ReadManifest(base string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(base))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no manifest for %s", ErrIncompleteRun, base)
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Verify checks that every shard listed in the manifest exists with the
// recorded size and checksum, and that the shard event counts add up.
func (m *Manifest) Verify() error {
	var total int64
	for _, s := range m.Shards {
		size, sum, err := digest(s.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIncompleteRun, err)
		}
		if size != s.Size || sum != s.SHA256 {
			return fmt.Errorf("%w: %s does not match the manifest", ErrIncompleteRun, s.Path)
		}
		total += s.NEvents
	}
	if total != m.TotalNumberOfEvents {
		return fmt.Errorf("%w: shards hold %d events, manifest expects %d", ErrIncompleteRun, total, m.TotalNumberOfEvents)
	}
	return nil
}
