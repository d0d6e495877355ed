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

const promptColumns = `id, owner_id, title, content, category, created_at, updated_at`

var promptUpdatable = map[string]bool{
	domain.FieldTitle:     true,
	domain.FieldContent:   true,
	domain.FieldCategory:  true,
	domain.FieldUpdatedAt: true,
}

// PromptStore is the remote adapter for prompts.
type PromptStore struct {
	db *DB
}

func scanPrompt(r rowScanner) (domain.Prompt, error) {
	var p domain.Prompt
	var created, updated dbTime
	if err := r.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.Category, &created, &updated); err != nil {
		return domain.Prompt{}, err
	}
	p.CreatedAt = created.t
	p.UpdatedAt = updated.t
	return p, nil
}

// Select implements remote.Store.
func (s *PromptStore) Select(ctx context.Context, ownerID string) ([]domain.Prompt, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT `+promptColumns+` FROM prompts WHERE owner_id = ? ORDER BY created_at DESC, id`), ownerID)
	if err != nil {
		return nil, fail("select prompts", err)
	}
	defer rows.Close()

	var prompts []domain.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fail("scan prompt", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate prompts", err)
	}
	return prompts, nil
}

// Insert implements remote.Store.
func (s *PromptStore) Insert(ctx context.Context, p domain.Prompt) (domain.Prompt, error) {
	if p.ID == "" || domain.IsPlaceholderID(p.ID) {
		p = p.WithID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO prompts (`+promptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Title, p.Content, p.Category,
		s.db.timeArg(p.CreatedAt), s.db.timeArg(p.UpdatedAt),
	)
	if err != nil {
		return domain.Prompt{}, fail("insert prompt", err)
	}
	return p, nil
}

// Update implements remote.Store.
func (s *PromptStore) Update(ctx context.Context, id, ownerID string, patch domain.Patch) (domain.Prompt, error) {
	set, args, err := s.db.setClause(promptUpdatable, patch)
	if err != nil {
		return domain.Prompt{}, fail("update prompt "+id, err)
	}
	args = append(args, id, ownerID)

	res, err := s.db.exec(ctx, s.db.conn, `UPDATE prompts SET `+set+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return domain.Prompt{}, fail("update prompt "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Prompt{}, remote.ErrNotFound
	}

	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+promptColumns+` FROM prompts WHERE id = ? AND owner_id = ?`), id, ownerID)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Prompt{}, remote.ErrNotFound
	}
	if err != nil {
		return domain.Prompt{}, fail("reload prompt "+id, err)
	}
	return p, nil
}

// Delete implements remote.Store. The owner's hidden marker for the prompt
// is removed with it.
func (s *PromptStore) Delete(ctx context.Context, id, ownerID string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.db.exec(ctx, tx, `DELETE FROM hidden_prompts WHERE owner_id = ? AND prompt_id = ?`, ownerID, id); err != nil {
		return fail("delete hidden marker for "+id, err)
	}
	if _, err := s.db.exec(ctx, tx, `DELETE FROM prompts WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fail("delete prompt "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit prompt delete", err)
	}
	return nil
}

// HiddenPromptStore is the remote adapter for hidden-prompt markers. A
// marker's id is the prompt id it hides.
type HiddenPromptStore struct {
	db *DB
}

// Select implements remote.Store.
func (s *HiddenPromptStore) Select(ctx context.Context, ownerID string) ([]domain.HiddenPrompt, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT prompt_id, owner_id, created_at FROM hidden_prompts WHERE owner_id = ? ORDER BY created_at DESC, prompt_id`), ownerID)
	if err != nil {
		return nil, fail("select hidden prompts", err)
	}
	defer rows.Close()

	var markers []domain.HiddenPrompt
	for rows.Next() {
		var h domain.HiddenPrompt
		var created dbTime
		if err := rows.Scan(&h.PromptID, &h.OwnerID, &created); err != nil {
			return nil, fail("scan hidden prompt", err)
		}
		h.CreatedAt = created.t
		markers = append(markers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate hidden prompts", err)
	}
	return markers, nil
}

// Insert implements remote.Store. Hiding an already hidden prompt fails
// with a unique violation.
func (s *HiddenPromptStore) Insert(ctx context.Context, h domain.HiddenPrompt) (domain.HiddenPrompt, error) {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.exec(ctx, s.db.conn,
		`INSERT INTO hidden_prompts (owner_id, prompt_id, created_at) VALUES (?, ?, ?)`,
		h.OwnerID, h.PromptID, s.db.timeArg(h.CreatedAt))
	if err != nil {
		return domain.HiddenPrompt{}, fail("hide prompt "+h.PromptID, err)
	}
	return h, nil
}

// Update implements remote.Store. Markers carry no mutable fields, so the
// stored marker is returned as is.
func (s *HiddenPromptStore) Update(ctx context.Context, id, ownerID string, _ domain.Patch) (domain.HiddenPrompt, error) {
	row := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT prompt_id, owner_id, created_at FROM hidden_prompts WHERE owner_id = ? AND prompt_id = ?`), ownerID, id)
	var h domain.HiddenPrompt
	var created dbTime
	err := row.Scan(&h.PromptID, &h.OwnerID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HiddenPrompt{}, remote.ErrNotFound
	}
	if err != nil {
		return domain.HiddenPrompt{}, fail("get hidden prompt "+id, err)
	}
	h.CreatedAt = created.t
	return h, nil
}

// Delete implements remote.Store.
func (s *HiddenPromptStore) Delete(ctx context.Context, id, ownerID string) error {
	if _, err := s.db.exec(ctx, s.db.conn, `DELETE FROM hidden_prompts WHERE owner_id = ? AND prompt_id = ?`, ownerID, id); err != nil {
		return fail("show prompt "+id, err)
	}
	return nil
}

var (
	_ remote.Store[domain.Prompt]       = (*PromptStore)(nil)
	_ remote.Store[domain.HiddenPrompt] = (*HiddenPromptStore)(nil)
)
