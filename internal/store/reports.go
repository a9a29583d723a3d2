package store

import (
	"database/sql"
	"fmt"
)

func insertReport(q querier, userID, locationID, typeID int64, delayMinutes *float64) (int64, error) {
	res, err := q.Exec(
		`INSERT INTO reports (user_id, location_id, type_id, delay_minutes) VALUES (?, ?, ?, ?)`,
		userID, locationID, typeID, delayMinutes,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert report: %w", err)
	}
	return res.LastInsertId()
}

// InsertReport records a new report and returns its id. Not part of the
// Aggregator's transactional recompute: the report row itself is the only
// non-idempotent side effect of processing a message (spec'd as its own
// unit of work).
func (s *Store) InsertReport(userID, locationID, typeID int64, delayMinutes *float64) (int64, error) {
	return insertReport(s.db, userID, locationID, typeID, delayMinutes)
}

func linkReportToIncident(q querier, reportID, incidentID int64) error {
	_, err := q.Exec(`UPDATE reports SET incident_id = ? WHERE id = ?`, incidentID, reportID)
	if err != nil {
		return fmt.Errorf("store: link report %d to incident %d: %w", reportID, incidentID, err)
	}
	return nil
}

// LinkReportToIncident assigns incident_id outside of a larger transaction.
func (s *Store) LinkReportToIncident(reportID, incidentID int64) error {
	return linkReportToIncident(s.db, reportID, incidentID)
}

// LinkReportToIncident assigns incident_id as part of an in-flight
// transaction.
func (t *Tx) LinkReportToIncident(reportID, incidentID int64) error {
	return linkReportToIncident(t.tx, reportID, incidentID)
}

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var r Report
	var delayMinutes sql.NullFloat64
	var incidentID sql.NullInt64
	if err := row.Scan(&r.ID, &r.UserID, &r.LocationID, &r.TypeID, &delayMinutes, &incidentID, &r.CreatedAt); err != nil {
		return Report{}, err
	}
	if delayMinutes.Valid {
		v := delayMinutes.Float64
		r.DelayMinutes = &v
	}
	if incidentID.Valid {
		v := incidentID.Int64
		r.IncidentID = &v
	}
	return r, nil
}

const reportColumns = `id, user_id, location_id, type_id, delay_minutes, incident_id, created_at`

func getReportsForIncident(q querier, incidentID int64) ([]Report, error) {
	rows, err := q.Query(`SELECT `+reportColumns+` FROM reports WHERE incident_id = ? ORDER BY created_at DESC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("store: get reports for incident %d: %w", incidentID, err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetReportsForIncident returns every report linked to an incident,
// newest first, outside of a larger transaction.
func (s *Store) GetReportsForIncident(incidentID int64) ([]Report, error) {
	return getReportsForIncident(s.db, incidentID)
}

// GetReportsForIncident returns every report linked to an incident as part
// of an in-flight transaction, so the Aggregator's recompute sees a
// consistent snapshot including the report it just linked.
func (t *Tx) GetReportsForIncident(incidentID int64) ([]Report, error) {
	return getReportsForIncident(t.tx, incidentID)
}

// GetReport returns a single report by id.
func (s *Store) GetReport(id int64) (*Report, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: unknown report id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get report: %w", err)
	}
	return &r, nil
}

// ListReports returns every report, newest first.
func (s *Store) ListReports() ([]Report, error) {
	rows, err := s.db.Query(`SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
