package store

import (
	"database/sql"
	"errors"
)

const adminPasswordKey = "admin_password_hash"

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetAdminPasswordHash stores the bcrypt hash guarding the admin routes.
func (s *Store) SetAdminPasswordHash(hash string) error {
	return s.SetMetadata(adminPasswordKey, hash)
}

// AdminPasswordHash returns the stored admin hash, or "" if none is set.
func (s *Store) AdminPasswordHash() (string, error) {
	return s.GetMetadata(adminPasswordKey)
}
