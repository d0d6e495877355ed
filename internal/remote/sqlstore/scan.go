package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mschirtzinger/notesync/internal/domain"
	"github.com/mschirtzinger/notesync/internal/remote"
)

// dbTime scans timestamps stored as TIMESTAMPTZ (Postgres) or RFC 3339 text
// (SQLite).
type dbTime struct {
	t time.Time
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.t = time.Time{}
	case time.Time:
		d.t = v
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
	return nil
}

func (d *dbTime) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	d.t = t
	return nil
}

// dbTags scans a JSON array of tags from TEXT or JSONB.
type dbTags struct {
	tags []string
}

func (d *dbTags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		d.tags = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into tags", src)
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if len(tags) == 0 {
		tags = nil
	}
	d.tags = tags
	return nil
}

func tagsArg(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// encodeValue converts a patch value into a driver argument.
func (db *DB) encodeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return db.timeArg(x)
	case []string:
		return tagsArg(x)
	case *string:
		return ptrArg(x)
	default:
		return v
	}
}

// setClause renders "col = ?, ..." for the patch fields allowed in columns,
// in a stable order.
func (db *DB) setClause(columns map[string]bool, patch domain.Patch) (string, []any, error) {
	fields := make([]string, 0, len(patch))
	for f := range patch {
		if !columns[f] {
			return "", nil, fmt.Errorf("field %q cannot be updated", f)
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		parts[i] = f + " = ?"
		args[i] = db.encodeValue(patch[f])
	}
	return strings.Join(parts, ", "), args, nil
}

// whereClause renders the conditions of a batched update.
func (db *DB) whereClause(columns map[string]bool, conds []remote.Cond) (string, []any, error) {
	var parts []string
	var args []any
	for _, c := range conds {
		if !columns[c.Field] && c.Field != domain.FieldID {
			return "", nil, fmt.Errorf("field %q cannot be filtered", c.Field)
		}
		if c.IsNull {
			parts = append(parts, c.Field+" IS NULL")
			continue
		}
		if len(c.Values) == 0 {
			// IN () matches nothing.
			parts = append(parts, "1 = 0")
			continue
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
		parts = append(parts, fmt.Sprintf("%s IN (%s)", c.Field, marks))
		for _, v := range c.Values {
			args = append(args, db.encodeValue(v))
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// fail wraps a driver error for callers, keeping its code visible to the
// classifier.
func fail(what string, err error) error {
	return fmt.Errorf("failed to %s: %w", what, remote.Wrap(err))
}
