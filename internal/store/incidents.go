package store

import (
	"database/sql"
	"fmt"
	"time"
)

const incidentColumns = `id, location_id, type_id, avg_delay, trust_score, status, created_at, last_updated`

func scanIncident(row interface{ Scan(...any) error }) (Incident, error) {
	var inc Incident
	var avgDelay sql.NullFloat64
	if err := row.Scan(&inc.ID, &inc.LocationID, &inc.TypeID, &avgDelay, &inc.TrustScore, &inc.Status, &inc.CreatedAt, &inc.LastUpdated); err != nil {
		return Incident{}, err
	}
	if avgDelay.Valid {
		v := avgDelay.Float64
		inc.AvgDelay = &v
	}
	return inc, nil
}

func createIncident(q querier, locationID, typeID int64, avgDelay *float64, trustScore float64, status string) (int64, error) {
	res, err := q.Exec(
		`INSERT INTO incidents (location_id, type_id, avg_delay, trust_score, status) VALUES (?, ?, ?, ?, ?)`,
		locationID, typeID, avgDelay, trustScore, status,
	)
	if err != nil {
		return 0, fmt.Errorf("store: create incident: %w", err)
	}
	return res.LastInsertId()
}

// CreateIncident inserts a new incident outside of a larger transaction.
func (s *Store) CreateIncident(locationID, typeID int64, avgDelay *float64, trustScore float64, status string) (int64, error) {
	return createIncident(s.db, locationID, typeID, avgDelay, trustScore, status)
}

// CreateIncident inserts a new incident as part of an in-flight transaction.
func (t *Tx) CreateIncident(locationID, typeID int64, avgDelay *float64, trustScore float64, status string) (int64, error) {
	return createIncident(t.tx, locationID, typeID, avgDelay, trustScore, status)
}

func getIncident(q querier, id int64) (*Incident, error) {
	row := q.QueryRow(`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: unknown incident id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get incident: %w", err)
	}
	return &inc, nil
}

// GetIncident returns an incident by id.
func (s *Store) GetIncident(id int64) (*Incident, error) {
	return getIncident(s.db, id)
}

// GetIncident returns an incident by id as part of an in-flight transaction.
func (t *Tx) GetIncident(id int64) (*Incident, error) {
	return getIncident(t.tx, id)
}

// GetActiveIncidentByLocation returns the single active incident at a
// location with the greatest last_updated, or (nil, nil) if there is none.
// Invariant I3 (at most one active incident per location) guarantees this
// query returns at most one row regardless of the LIMIT.
func getActiveIncidentByLocation(q querier, locationID int64) (*Incident, error) {
	row := q.QueryRow(
		`SELECT `+incidentColumns+` FROM incidents WHERE location_id = ? AND status = ? ORDER BY last_updated DESC LIMIT 1`,
		locationID, StatusActive,
	)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get active incident for location %d: %w", locationID, err)
	}
	return &inc, nil
}

// GetActiveIncidentByLocation looks up the active incident at a location
// outside of a larger transaction.
func (s *Store) GetActiveIncidentByLocation(locationID int64) (*Incident, error) {
	return getActiveIncidentByLocation(s.db, locationID)
}

// GetActiveIncidentByLocation looks up the active incident at a location as
// part of an in-flight transaction, so a concurrent sweep or insert can't
// race with the Aggregator's decision of whether to open a new incident.
func (t *Tx) GetActiveIncidentByLocation(locationID int64) (*Incident, error) {
	return getActiveIncidentByLocation(t.tx, locationID)
}

func updateIncidentType(q querier, id, typeID int64) error {
	_, err := q.Exec(`UPDATE incidents SET type_id = ? WHERE id = ?`, typeID, id)
	if err != nil {
		return fmt.Errorf("store: update incident type: %w", err)
	}
	return nil
}

// UpdateIncidentType sets an incident's dominant report type.
func (t *Tx) UpdateIncidentType(id, typeID int64) error {
	return updateIncidentType(t.tx, id, typeID)
}

func updateAvgDelay(q querier, id int64, avgDelay *float64) error {
	if avgDelay != nil && *avgDelay < 0 {
		return fmt.Errorf("store: avg_delay %v must be >= 0 for incident %d", *avgDelay, id)
	}
	_, err := q.Exec(`UPDATE incidents SET avg_delay = ? WHERE id = ?`, avgDelay, id)
	if err != nil {
		return fmt.Errorf("store: update avg_delay: %w", err)
	}
	return nil
}

// UpdateAvgDelay sets an incident's normalized average delay. nil clears it
// (no delay-bearing reports are currently linked).
func (t *Tx) UpdateAvgDelay(id int64, avgDelay *float64) error {
	return updateAvgDelay(t.tx, id, avgDelay)
}

func updateIncidentTrustScore(q querier, id int64, trustScore float64) error {
	if trustScore < 0 || trustScore > 1 {
		return fmt.Errorf("store: incident trust score %v out of [0,1] for incident %d", trustScore, id)
	}
	_, err := q.Exec(`UPDATE incidents SET trust_score = ? WHERE id = ?`, trustScore, id)
	if err != nil {
		return fmt.Errorf("store: update incident trust score: %w", err)
	}
	return nil
}

// UpdateTrustScore sets an incident's weighted-mean trust score.
func (t *Tx) UpdateTrustScore(id int64, trustScore float64) error {
	return updateIncidentTrustScore(t.tx, id, trustScore)
}

func updateLastUpdated(q querier, id int64, ts time.Time) error {
	row := q.QueryRow(`SELECT last_updated FROM incidents WHERE id = ?`, id)
	var current time.Time
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("store: read last_updated for incident %d: %w", id, err)
	}
	if ts.Before(current) {
		return fmt.Errorf("store: last_updated must be monotonic non-decreasing for incident %d (have %v, got %v)", id, current, ts)
	}
	_, err := q.Exec(`UPDATE incidents SET last_updated = ? WHERE id = ?`, ts, id)
	if err != nil {
		return fmt.Errorf("store: update last_updated: %w", err)
	}
	return nil
}

// UpdateLastUpdated bumps an incident's last_updated timestamp, rejecting
// non-monotonic updates (invariant I6).
func (t *Tx) UpdateLastUpdated(id int64, ts time.Time) error {
	return updateLastUpdated(t.tx, id, ts)
}

func updateStatus(q querier, id int64, status string) error {
	switch status {
	case StatusActive, StatusResolved, StatusPending:
	default:
		return fmt.Errorf("store: invalid incident status %q", status)
	}
	_, err := q.Exec(`UPDATE incidents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	return nil
}

// UpdateStatus transitions an incident's status. Idempotent: setting the
// same status twice is a no-op write.
func (t *Tx) UpdateStatus(id int64, status string) error {
	return updateStatus(t.tx, id, status)
}

// ListActiveIncidents returns every incident currently marked active,
// across all locations. Used by the staleness sweep, which evaluates the
// "now > last_updated + avg_delay + grace" rule in application code rather
// than in SQL.
func (s *Store) ListActiveIncidents() ([]Incident, error) {
	rows, err := s.db.Query(`SELECT `+incidentColumns+` FROM incidents WHERE status = ?`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("store: list active incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// IncidentFilter narrows ListIncidents results. Zero values are wildcards.
type IncidentFilter struct {
	LocationID int64
	TypeID     int64
	Status     string
}

// ListIncidents returns incidents matching filter, most recently updated
// first.
func (s *Store) ListIncidents(filter IncidentFilter) ([]Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	var args []any
	if filter.LocationID != 0 {
		query += ` AND location_id = ?`
		args = append(args, filter.LocationID)
	}
	if filter.TypeID != 0 {
		query += ` AND type_id = ?`
		args = append(args, filter.TypeID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY last_updated DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// RecentlyUpdatedActiveIncidents returns active incidents whose
// last_updated falls within the given window ending now — used by the GTFS
// feed builder.
func (s *Store) RecentlyUpdatedActiveIncidents(since time.Time) ([]Incident, error) {
	rows, err := s.db.Query(
		`SELECT `+incidentColumns+` FROM incidents WHERE status = ? AND last_updated >= ?`,
		StatusActive, since,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recently updated active incidents: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
