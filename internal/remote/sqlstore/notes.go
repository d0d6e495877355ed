package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

const noteColumns = `id, owner_id, title, content, folder_id, tags, created_at, updated_at`

var noteUpdatable = map[string]bool{
	domain.FieldTitle:     true,
	domain.FieldContent:   true,
	domain.FieldFolderID:  true,
	domain.FieldTags:      true,
	domain.FieldUpdatedAt: true,
}

// NoteStore is the remote adapter for notes.
type NoteStore struct {
	db *DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (domain.Note, error) {
	var n domain.Note
	var folderID sql.NullString
	var tags dbTags
	var created, updated dbTime
	if err := r.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &folderID, &tags, &created, &updated); err != nil {
		return domain.Note{}, err
	}
	n.FolderID = nullStringPtr(folderID)
	n.Tags = tags.tags
	n.CreatedAt = created.t
	n.UpdatedAt = updated.t
	return n, nil
}

// Select implements remote.Store.
func (s *NoteStore) Select(ctx context.Context, ownerID string) ([]domain.Note, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT `+noteColumns+` FROM notes WHERE owner_id = ? ORDER BY created_at DESC, id`), ownerID)
	if err != nil {
		return nil, fail("select notes", err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fail("scan note", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate notes", err)
	}
	return notes, nil
}

// Get returns one note.
func (s *NoteStore) Get(ctx context.Context, id, ownerID string) (domain.Note, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`), id, ownerID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, remote.ErrNotFound
	}
	if err != nil {
		return domain.Note{}, fail("get note "+id, err)
	}
	return n, nil
}

// Insert implements remote.Store. Placeholder ids are replaced with UUIDs.
func (s *NoteStore) Insert(ctx context.Context, n domain.Note) (domain.Note, error) {
	if n.ID == "" || domain.IsPlaceholderID(n.ID) {
		n = n.WithID(uuid.NewString())
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	n.Tags = domain.ExtractTags(n.Content)

	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.Title, n.Content, ptrArg(n.FolderID), tagsArg(n.Tags),
		s.db.timeArg(n.CreatedAt), s.db.timeArg(n.UpdatedAt),
	)
	if err != nil {
		return domain.Note{}, fail("insert note", err)
	}
	return n, nil
}

// Update implements remote.Store. Tags are recomputed when content changes.
func (s *NoteStore) Update(ctx context.Context, id, ownerID string, patch domain.Patch) (domain.Note, error) {
	if content, ok := patch[domain.FieldContent].(string); ok && !patch.Has(domain.FieldTags) {
		patch = clonePatch(patch)
		patch[domain.FieldTags] = domain.ExtractTags(content)
	}
	set, args, err := s.db.setClause(noteUpdatable, patch)
	if err != nil {
		return domain.Note{}, fail("update note "+id, err)
	}
	args = append(args, id, ownerID)

	res, err := s.db.exec(ctx, s.db.conn, `UPDATE notes SET `+set+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return domain.Note{}, fail("update note "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Note{}, remote.ErrNotFound
	}
	return s.Get(ctx, id, ownerID)
}

// Delete implements remote.Store.
func (s *NoteStore) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fail("delete note "+id, err)
	}
	return nil
}

// UpdateWhere implements remote.BatchUpdater in a single statement.
func (s *NoteStore) UpdateWhere(ctx context.Context, ownerID string, conds []remote.Cond, patch domain.Patch) (int, error) {
	set, setArgs, err := s.db.setClause(noteUpdatable, patch)
	if err != nil {
		return 0, fail("batch update notes", err)
	}
	where, whereArgs, err := s.db.whereClause(noteUpdatable, conds)
	if err != nil {
		return 0, fail("batch update notes", err)
	}
	query := `UPDATE notes SET ` + set + ` WHERE owner_id = ?`
	if where != "" {
		query += " AND " + where
	}
	args := append(setArgs, ownerID)
	args = append(args, whereArgs...)

	res, err := s.db.exec(ctx, s.db.conn, query, args...)
	if err != nil {
		return 0, fail("batch update notes", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func clonePatch(p domain.Patch) domain.Patch {
	out := make(domain.Patch, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

var (
	_ remote.Store[domain.Note] = (*NoteStore)(nil)
	_ remote.BatchUpdater       = (*NoteStore)(nil)
)
