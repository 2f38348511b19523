// Package targetdb loads named target definitions from a sqlite
// database: each target carries its physical mirror diameter, the
// expected hole diameter and the ring value to ring diameter table.
package targetdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/openrange-dev/spotter/internal/target"
)

type DB struct {
	*sql.DB
}

// NewDB opens (and if necessary creates) the target database at path and
// seeds the built-in target definitions.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS targets (
			name TEXT PRIMARY KEY,
			mirror_diameter_mm DOUBLE NOT NULL,
			hole_diameter_mm DOUBLE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS target_rings (
			target_name TEXT NOT NULL,
			ring INTEGER NOT NULL,
			diameter_mm DOUBLE NOT NULL,
			PRIMARY KEY (target_name, ring),
			FOREIGN KEY (target_name) REFERENCES targets(name)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	d := &DB{db}
	if err := d.seed(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// builtinTargets are seeded on first open so a fresh install has
// something to shoot at. Ring diameters are in millimetres.
var builtinTargets = []struct {
	name     string
	mirrorMM float64
	holeMM   float64
	rings    map[int]float64
}{
	{
		// Eleven-ring precision target; ring diameters relative to a
		// 60 mm mirror, from 2.5x down to 0.125x.
		name: "precision-11", mirrorMM: 60, holeMM: 5.6,
		rings: map[int]float64{
			1: 150, 2: 135, 3: 120, 4: 105, 5: 90,
			6: 75, 7: 60, 8: 45, 9: 30, 10: 15, 11: 7.5,
		},
	},
	{
		// 10m air rifle: 0.5 mm ten ring, 5 mm spacing, 30.5 mm mirror
		// covering rings seven and up.
		name: "air-rifle-10m", mirrorMM: 30.5, holeMM: 4.5,
		rings: map[int]float64{
			1: 45.5, 2: 40.5, 3: 35.5, 4: 30.5, 5: 25.5,
			6: 20.5, 7: 15.5, 8: 10.5, 9: 5.5, 10: 0.5,
		},
	},
	{
		// 25m precision pistol: 50 mm ten ring, 200 mm mirror over
		// rings seven to ten.
		name: "pistol-25m", mirrorMM: 200, holeMM: 5.6,
		rings: map[int]float64{
			1: 500, 2: 450, 3: 400, 4: 350, 5: 300,
			6: 250, 7: 200, 8: 150, 9: 100, 10: 50,
		},
	},
}

func (db *DB) seed() error {
	for _, t := range builtinTargets {
		if _, err := db.Exec(
			"INSERT OR IGNORE INTO targets (name, mirror_diameter_mm, hole_diameter_mm) VALUES (?, ?, ?)",
			t.name, t.mirrorMM, t.holeMM,
		); err != nil {
			return fmt.Errorf("failed to seed target %s: %w", t.name, err)
		}
		for ring, diam := range t.rings {
			if _, err := db.Exec(
				"INSERT OR IGNORE INTO target_rings (target_name, ring, diameter_mm) VALUES (?, ?, ?)",
				t.name, ring, diam,
			); err != nil {
				return fmt.Errorf("failed to seed ring %d of %s: %w", ring, t.name, err)
			}
		}
	}
	return nil
}

// List returns the names of all defined targets.
func (db *DB) List() ([]string, error) {
	rows, err := db.Query("SELECT name FROM targets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Load resolves a named target into the ring model consumed by the
// engine. Ring diameters are converted to ratios relative to the mirror
// diameter.
func (db *DB) Load(name string) (*target.Target, error) {
	var mirrorMM, holeMM float64
	err := db.QueryRow(
		"SELECT mirror_diameter_mm, hole_diameter_mm FROM targets WHERE name = ?", name,
	).Scan(&mirrorMM, &holeMM)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown target %q", name)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT ring, diameter_mm FROM target_rings WHERE target_name = ?", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := make(map[int]float64)
	for rows.Next() {
		var ring int
		var diam float64
		if err := rows.Scan(&ring, &diam); err != nil {
			return nil, err
		}
		table[ring] = diam / mirrorMM
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return target.New(name, mirrorMM, holeMM, table)
}
