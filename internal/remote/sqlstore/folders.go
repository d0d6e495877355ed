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

const folderColumns = `id, owner_id, name, color, created_at`

var folderUpdatable = map[string]bool{
	domain.FieldName:  true,
	domain.FieldColor: true,
}

// FolderStore is the remote adapter for folders.
type FolderStore struct {
	db *DB
}

func scanFolder(r rowScanner) (domain.Folder, error) {
	var f domain.Folder
	var created dbTime
	if err := r.Scan(&f.ID, &f.OwnerID, &f.Name, &f.Color, &created); err != nil {
		return domain.Folder{}, err
	}
	f.CreatedAt = created.t
	return f, nil
}

// Select implements remote.Store.
func (s *FolderStore) Select(ctx context.Context, ownerID string) ([]domain.Folder, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT `+folderColumns+` FROM folders WHERE owner_id = ? ORDER BY created_at DESC, id`), ownerID)
	if err != nil {
		return nil, fail("select folders", err)
	}
	defer rows.Close()

	var folders []domain.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fail("scan folder", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate folders", err)
	}
	return folders, nil
}

// Get returns one folder.
func (s *FolderStore) Get(ctx context.Context, id, ownerID string) (domain.Folder, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+folderColumns+` FROM folders WHERE id = ? AND owner_id = ?`), id, ownerID)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Folder{}, remote.ErrNotFound
	}
	if err != nil {
		return domain.Folder{}, fail("get folder "+id, err)
	}
	return f, nil
}

// Insert implements remote.Store. A folder restored with its original id
// that already exists fails with a unique violation.
func (s *FolderStore) Insert(ctx context.Context, f domain.Folder) (domain.Folder, error) {
	if f.ID == "" || domain.IsPlaceholderID(f.ID) {
		f = f.WithID(uuid.NewString())
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.Name, f.Color, s.db.timeArg(f.CreatedAt),
	)
	if err != nil {
		return domain.Folder{}, fail("insert folder", err)
	}
	return f, nil
}

// Update implements remote.Store.
func (s *FolderStore) Update(ctx context.Context, id, ownerID string, patch domain.Patch) (domain.Folder, error) {
	set, args, err := s.db.setClause(folderUpdatable, patch)
	if err != nil {
		return domain.Folder{}, fail("update folder "+id, err)
	}
	args = append(args, id, ownerID)

	res, err := s.db.exec(ctx, s.db.conn, `UPDATE folders SET `+set+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return domain.Folder{}, fail("update folder "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Folder{}, remote.ErrNotFound
	}
	return s.Get(ctx, id, ownerID)
}

// Delete implements remote.Store. Notes in the folder are left to the
// foreign key; use DeleteFolderCascade to unfile them explicitly.
func (s *FolderStore) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM folders WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fail("delete folder "+id, err)
	}
	return nil
}

// DeleteFolderCascade implements remote.FolderCascadeDeleter. The owner's
// notes in the folder are unfiled and the folder removed in one
// transaction.
func (s *FolderStore) DeleteFolderCascade(ctx context.Context, folderID, ownerID string) (int, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fail("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.db.timeArg(time.Now().UTC())
	res, err := s.db.exec(ctx, tx,
		`UPDATE notes SET folder_id = NULL, updated_at = ? WHERE owner_id = ? AND folder_id = ?`,
		now, ownerID, folderID)
	if err != nil {
		return 0, fail("detach notes from folder "+folderID, err)
	}
	detached, _ := res.RowsAffected()

	if _, err := s.db.exec(ctx, tx, `DELETE FROM folders WHERE id = ? AND owner_id = ?`, folderID, ownerID); err != nil {
		return 0, fail("delete folder "+folderID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fail("commit folder delete", err)
	}
	return int(detached), nil
}

var (
	_ remote.Store[domain.Folder] = (*FolderStore)(nil)
	_ remote.FolderCascadeDeleter = (*FolderStore)(nil)
)
