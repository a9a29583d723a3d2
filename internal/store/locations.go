package store

import (
	"database/sql"
	"fmt"
)

// GetLocationIDByName returns the id of a location by name, or
// (0, sql.ErrNoRows) if it doesn't exist.
func (s *Store) GetLocationIDByName(name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM locations WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddLocation inserts a new location.
func (s *Store) AddLocation(name string, lat, lon float64) (*Location, error) {
	res, err := s.db.Exec(`INSERT INTO locations (name, coords_lat, coords_lon) VALUES (?, ?, ?)`, name, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("store: add location %s: %w", name, err)
	}
	id, _ := res.LastInsertId()
	return s.GetLocation(id)
}

// GetLocation returns a location by id.
func (s *Store) GetLocation(id int64) (*Location, error) {
	var l Location
	err := s.db.QueryRow(`SELECT id, name, coords_lat, coords_lon FROM locations WHERE id = ?`, id).
		Scan(&l.ID, &l.Name, &l.CoordsLat, &l.CoordsLon)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: unknown location id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get location: %w", err)
	}
	return &l, nil
}

// ListLocations returns every location.
func (s *Store) ListLocations() ([]Location, error) {
	rows, err := s.db.Query(`SELECT id, name, coords_lat, coords_lon FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list locations: %w", err)
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.CoordsLat, &l.CoordsLon); err != nil {
			return nil, fmt.Errorf("store: scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
