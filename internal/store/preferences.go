package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

// GetPreferences returns the user's stored preferences, or a NOT_FOUND error
// when the user has never saved any.
func (s *Store) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+preferencesColumns+`
		FROM user_preferences
		WHERE user_id = ?
	`, userID)
	p, err := scanPreferences(row)
	if err != nil {
		return model.Preferences{}, rowError("get preferences", model.TablePreferences, userID, err)
	}
	return p, nil
}

// UpsertPreferences inserts or replaces the user's preferences row. The
// caller's UpdatedAt is ignored; the row is stamped here.
func (s *Store) UpsertPreferences(ctx context.Context, prefs model.Preferences) (model.Preferences, error) {
	if prefs.UserID == "" {
		return model.Preferences{}, gateway.Invalid("upsert preferences", "user_id is required")
	}
	if _, err := model.ParseTheme(string(prefs.Theme)); err != nil {
		return model.Preferences{}, gateway.Invalid("upsert preferences", err.Error())
	}
	if prefs.Theme == "" {
		prefs.Theme = model.ThemeLight
	}
	var (
		before  model.Preferences
		existed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+preferencesColumns+` FROM user_preferences WHERE user_id = ?`, prefs.UserID)
		var err error
		before, err = scanPreferences(row)
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("read preferences: %w", err)
		}
		prefs.UpdatedAt = s.stampAfter(before.UpdatedAt)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO user_preferences (`+preferencesColumns+`)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				theme = excluded.theme,
				background_color = excluded.background_color,
				background_gradient = excluded.background_gradient,
				updated_at = excluded.updated_at
		`,
			prefs.UserID,
			string(prefs.Theme),
			nullString(prefs.BackgroundColor),
			nullString(prefs.BackgroundGradient),
			formatTime(prefs.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("write preferences: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Preferences{}, rowError("upsert preferences", model.TablePreferences, prefs.UserID, err)
	}

	if existed {
		publish(s, model.TablePreferences, model.OpUpdate, prefs.UserID, &prefs, &before)
	} else {
		publish[model.Preferences](s, model.TablePreferences, model.OpInsert, prefs.UserID, &prefs, nil)
	}
	return prefs, nil
}
