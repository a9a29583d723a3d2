package store

import (
	"database/sql"
	"fmt"
)

// CreateUser inserts a new user with the default trust score of 1.0.
func (s *Store) CreateUser(username, email string) (*User, error) {
	res, err := s.db.Exec(`INSERT INTO users (username, email) VALUES (?, ?)`, username, email)
	if err != nil {
		return nil, fmt.Errorf("store: create user %s: %w", username, err)
	}
	id, _ := res.LastInsertId()
	return s.GetUser(id)
}

const userColumns = `id, username, email, trust_score, reports_made, created_at`

func getUser(q querier, id int64) (*User, error) {
	var u User
	err := q.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.TrustScore, &u.ReportsMade, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: unknown user id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return &u, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(id int64) (*User, error) {
	return getUser(s.db, id)
}

// GetUser returns a user by id as part of an in-flight transaction, so the
// Aggregator's weighted trust recompute sees a consistent snapshot.
func (t *Tx) GetUser(id int64) (*User, error) {
	return getUser(t.tx, id)
}

// GetUserIDByUsername returns the id of a user by username, or
// (0, sql.ErrNoRows) if it doesn't exist — the caller treats this as
// UnknownUser.
func (s *Store) GetUserIDByUsername(username string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateTrustScore overwrites a user's trust score. The caller is
// responsible for computing the new value (via internal/reputation).
func (s *Store) UpdateTrustScore(userID int64, trustScore float64) error {
	if trustScore < 0 || trustScore > 1 {
		return fmt.Errorf("store: trust score %v out of [0,1] for user %d", trustScore, userID)
	}
	_, err := s.db.Exec(`UPDATE users SET trust_score = ? WHERE id = ?`, trustScore, userID)
	if err != nil {
		return fmt.Errorf("store: update trust score: %w", err)
	}
	return nil
}

// IncrementReportsMade atomically bumps a user's reports_made counter by one
// and returns the new count.
func (s *Store) IncrementReportsMade(userID int64) (int, error) {
	_, err := s.db.Exec(`UPDATE users SET reports_made = reports_made + 1 WHERE id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("store: increment reports_made: %w", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT reports_made FROM users WHERE id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: read reports_made: %w", err)
	}
	return count, nil
}

// ListUsers returns every registered user.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT id, username, email, trust_score, reports_made, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.TrustScore, &u.ReportsMade, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
