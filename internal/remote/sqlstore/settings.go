package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

var settingsUpdatable = map[string]bool{
	domain.FieldAIModel:         true,
	domain.FieldDefaultFolderID: true,
	domain.FieldUpdatedAt:       true,
}

// SettingsStore is the remote adapter for user settings. Each owner has at
// most one row, keyed by owner id.
type SettingsStore struct {
	db *DB
}

func (s *SettingsStore) get(ctx context.Context, ownerID string) (domain.UserSettings, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT owner_id, ai_model, default_folder_id, updated_at FROM user_settings WHERE owner_id = ?`), ownerID)
	var us domain.UserSettings
	var folderID sql.NullString
	var updated dbTime
	if err := row.Scan(&us.OwnerID, &us.AIModel, &folderID, &updated); err != nil {
		return domain.UserSettings{}, err
	}
	us.DefaultFolderID = nullStringPtr(folderID)
	us.UpdatedAt = updated.t
	return us, nil
}

// Select implements remote.Store. It returns no rows for an owner who has
// never saved settings.
func (s *SettingsStore) Select(ctx context.Context, ownerID string) ([]domain.UserSettings, error) {
	us, err := s.get(ctx, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("select settings", err)
	}
	return []domain.UserSettings{us}, nil
}

// Insert implements remote.Store as an upsert.
func (s *SettingsStore) Insert(ctx context.Context, us domain.UserSettings) (domain.UserSettings, error) {
	if us.UpdatedAt.IsZero() {
		us.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO user_settings (owner_id, ai_model, default_folder_id, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   ai_model = excluded.ai_model,
		   default_folder_id = excluded.default_folder_id,
		   updated_at = excluded.updated_at`,
		us.OwnerID, us.AIModel, ptrArg(us.DefaultFolderID), s.db.timeArg(us.UpdatedAt))
	if err != nil {
		return domain.UserSettings{}, fail("save settings", err)
	}
	return us, nil
}

// Update implements remote.Store.
func (s *SettingsStore) Update(ctx context.Context, _, ownerID string, patch domain.Patch) (domain.UserSettings, error) {
	set, args, err := s.db.setClause(settingsUpdatable, patch)
	if err != nil {
		return domain.UserSettings{}, fail("update settings", err)
	}
	args = append(args, ownerID)

	res, err := s.db.exec(ctx, s.db.conn, `UPDATE user_settings SET `+set+` WHERE owner_id = ?`, args...)
	if err != nil {
		return domain.UserSettings{}, fail("update settings", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.UserSettings{}, remote.ErrNotFound
	}
	us, err := s.get(ctx, ownerID)
	if err != nil {
		return domain.UserSettings{}, fail("reload settings", err)
	}
	return us, nil
}

// Delete implements remote.Store.
func (s *SettingsStore) Delete(ctx context.Context, _, ownerID string) error {
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM user_settings WHERE owner_id = ?`, ownerID); err != nil {
		return fail("delete settings", err)
	}
	return nil
}

var _ remote.Store[domain.UserSettings] = (*SettingsStore)(nil)
