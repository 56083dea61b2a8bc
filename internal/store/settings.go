package store

import (
	"database/sql"
	"fmt"

	"github.com/pavelanni/recap/internal/model"
)

const (
	keyAPIKey    = "api_key"
	keyModelName = "model_name"
)

// GetSetting returns the value for a settings key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// LoadSettings reads the stored preferences, falling back to defaults for
// keys that were never saved.
func (s *Store) LoadSettings() (model.Settings, error) {
	st := model.DefaultSettings()
	var err error
	if st.APIKey, err = s.GetSetting(keyAPIKey); err != nil {
		return st, fmt.Errorf("read %s: %w", keyAPIKey, err)
	}
	name, err := s.GetSetting(keyModelName)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", keyModelName, err)
	}
	if name != "" {
		st.ModelName = name
	}
	return st, nil
}

// SaveSettings writes both preferences in one transaction.
func (s *Store) SaveSettings(st model.Settings) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pairs := []struct{ k, v string }{
		{keyAPIKey, st.APIKey},
		{keyModelName, st.ModelName},
	}
	for _, p := range pairs {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = ?`,
			p.k, p.v, p.v,
		); err != nil {
			return fmt.Errorf("write %s: %w", p.k, err)
		}
	}
	return tx.Commit()
}
