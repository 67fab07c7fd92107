package shard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/radiosim/eventgen/sim"
)

// Schema version of the shard container.
const (
	VersionMajor = 2
	VersionMinor = 2
)

// Header is the descriptive text stored in every shard.
const Header = `
units: metre, nanosecond, radian, eV
coordinates: origin at the surface, x Easting, y Northing, z upwards
zenith: angle to the z axis (0 = up, pi/2 = horizon, pi = down); azimuth: from East, counting northwards
showers: one row per energy deposit; rows of an event group share event_group_id
flavor: signed PDG code of the primary, or of the particle that produced a secondary shower
n_interaction: 1 for the primary interaction, >= 2 for secondary showers
inelasticity: NULL for secondary showers
shower_type: "had" (hadronic) or "em" (electromagnetic)
`

const createShowers = `
	CREATE TABLE showers (
		row_index       INTEGER PRIMARY KEY,
		event_group_id  INTEGER NOT NULL,
		shower_id       INTEGER NOT NULL,
		flavor          INTEGER NOT NULL,
		interaction_type TEXT NOT NULL,
		energy          REAL NOT NULL,
		zenith          REAL NOT NULL,
		azimuth         REAL NOT NULL,
		inelasticity    REAL,
		n_interaction   INTEGER NOT NULL,
		xx              REAL NOT NULL,
		yy              REAL NOT NULL,
		zz              REAL NOT NULL,
		vertex_time     REAL NOT NULL,
		shower_energy   REAL NOT NULL,
		shower_type     TEXT NOT NULL
	)
`

const createAttributes = `
	CREATE TABLE attributes (
		position INTEGER PRIMARY KEY,
		key      TEXT NOT NULL UNIQUE,
		value    TEXT NOT NULL
	)
`

// containerAttributes returns the attribute list stored in one shard: the
// run attributes followed by the container and per-shard entries.
func containerAttributes(attrs *sim.Attributes, nEvents int64) []sim.Attribute {
	out := []sim.Attribute{
		{Key: "VERSION_MAJOR", Value: VersionMajor},
		{Key: "VERSION_MINOR", Value: VersionMinor},
		{Key: "header", Value: Header},
	}
	out = append(out, attrs.Pairs()...)
	return append(out,
		sim.Attribute{Key: "total_number_of_events", Value: attrs.NEvents},
		// Overrides the run-level n_events of Pairs.
		sim.Attribute{Key: "n_events", Value: nEvents},
	)
}

// writeContainer writes rows and attributes to a new SQLite file at path.
// Any existing file is replaced.
func writeContainer(ctx context.Context, path string, rows sim.Table, attrs []sim.Attribute) (err error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close sqlite: %w", cerr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{createShowers, createAttributes} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	ins, err := tx.PrepareContext(ctx, `INSERT INTO showers (
		row_index, event_group_id, shower_id, flavor, interaction_type, energy, zenith, azimuth,
		inelasticity, n_interaction, xx, yy, zz, vertex_time, shower_energy, shower_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = ins.Close() }()
	for i, r := range rows {
		var inelasticity any
		if r.Inelasticity.Valid {
			inelasticity = r.Inelasticity.Value
		}
		if _, err := ins.ExecContext(ctx, i, r.EventGroupID, r.ShowerID, int(r.Flavor), string(r.Channel),
			r.Energy, r.Zenith, r.Azimuth, inelasticity, r.InteractionIndex,
			r.Position.X, r.Position.Y, r.Position.Z, r.VertexTime, r.ShowerEnergy, string(r.ShowerClass)); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	// Later keys replace earlier ones in place.
	insAttr, err := tx.PrepareContext(ctx, `INSERT INTO attributes (position, key, value) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare attributes: %w", err)
	}
	defer func() { _ = insAttr.Close() }()
	for i, a := range attrs {
		value, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("marshal attribute %s: %w", a.Key, err)
		}
		if _, err := insAttr.ExecContext(ctx, i, a.Key, string(value)); err != nil {
			return fmt.Errorf("insert attribute %s: %w", a.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Contents is a shard read back from disk.
type Contents struct {
	Table      sim.Table
	Attributes []Attribute
}

// Attribute is a stored attribute with its JSON-encoded value.
type Attribute struct {
	Key   string
	Value json.RawMessage
}

// Lookup decodes the attribute key into v.
func (c *Contents) Lookup(key string, v any) error {
	for _, a := range c.Attributes {
		if a.Key == key {
			return json.Unmarshal(a.Value, v)
		}
	}
	return fmt.Errorf("shard: no attribute %q", key)
}

// Int64 returns an integer attribute.
func (c *Contents) Int64(key string) (int64, error) {
	var v int64
	err := c.Lookup(key, &v)
	return v, err
}

// ReadShard reads a shard file written by Writer.
func ReadShard(ctx context.Context, path string) (*Contents, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("shard: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `SELECT event_group_id, shower_id, flavor, interaction_type, energy,
		zenith, azimuth, inelasticity, n_interaction, xx, yy, zz, vertex_time, shower_energy, shower_type
		FROM showers ORDER BY row_index`)
	if err != nil {
		return nil, fmt.Errorf("select showers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	c := &Contents{}
	for rows.Next() {
		var (
			r            sim.Record
			flavor       int
			channel      string
			class        string
			inelasticity sql.NullFloat64
		)
		if err := rows.Scan(&r.EventGroupID, &r.ShowerID, &flavor, &channel, &r.Energy,
			&r.Zenith, &r.Azimuth, &inelasticity, &r.InteractionIndex,
			&r.Position.X, &r.Position.Y, &r.Position.Z, &r.VertexTime, &r.ShowerEnergy, &class); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Flavor = sim.Flavor(flavor)
		r.Channel = sim.Channel(channel)
		r.Inelasticity = sim.OptFloat{Value: inelasticity.Float64, Valid: inelasticity.Valid}
		if r.ShowerClass, err = sim.ParseShowerClass(class); err != nil {
			return nil, err
		}
		c.Table = append(c.Table, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate showers: %w", err)
	}

	attrRows, err := db.QueryContext(ctx, `SELECT key, value FROM attributes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("select attributes: %w", err)
	}
	defer func() { _ = attrRows.Close() }()
	for attrRows.Next() {
		var key, value string
		if err := attrRows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		c.Attributes = append(c.Attributes, Attribute{Key: key, Value: json.RawMessage(value)})
	}
	if err := attrRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return c, nil
}
