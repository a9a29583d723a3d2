package store

import (
	"database/sql"
	"fmt"
)

// SeedReportTypes inserts the closed set of report types, ignoring any that
// already exist. Called once at startup.
func (s *Store) SeedReportTypes(names []string) error {
	for _, name := range names {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO report_types (name) VALUES (?)`, name); err != nil {
			return fmt.Errorf("store: seed report type %s: %w", name, err)
		}
	}
	return nil
}

// GetTypeIDByName returns the id of a report type, or (0, sql.ErrNoRows) if
// it doesn't exist — the caller treats this as UnknownType.
func (s *Store) GetTypeIDByName(name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM report_types WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListReportTypes returns every seeded report type.
func (s *Store) ListReportTypes() ([]ReportType, error) {
	rows, err := s.db.Query(`SELECT id, name FROM report_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list report types: %w", err)
	}
	defer rows.Close()

	var out []ReportType
	for rows.Next() {
		var t ReportType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("store: scan report type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTypeName returns the name of a report type by id.
func (s *Store) GetTypeName(id int64) (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT name FROM report_types WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("store: unknown report type id %d", id)
	}
	if err != nil {
		return "", fmt.Errorf("store: get report type name: %w", err)
	}
	return name, nil
}
