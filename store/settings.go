package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewSettingsStore(db *pgxpool.Pool, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{
		db:     db,
		logger: logger,
	}
}

// UserSettings returns the stored settings map for a user. A missing row or
// unreadable payload degrades to an empty map so a job never fails on
// configuration lookup.
func (s *SettingsStore) UserSettings(ctx context.Context, userID int) (map[string]interface{}, error) {
	var settingsJSON []byte
	err := s.db.QueryRow(ctx, `SELECT settings FROM user_settings WHERE user_id = $1`, userID).Scan(&settingsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]interface{}{}, nil
		}
		s.logger.Warn("Could not retrieve user settings, using defaults",
			slog.Int("user_id", userID),
			slog.String("error", err.Error()))
		return map[string]interface{}{}, nil
	}

	var settings map[string]interface{}
	if err := json.Unmarshal(settingsJSON, &settings); err != nil {
		s.logger.Warn("Could not parse user settings, using defaults",
			slog.Int("user_id", userID),
			slog.String("error", err.Error()))
		return map[string]interface{}{}, nil
	}
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return settings, nil
}
