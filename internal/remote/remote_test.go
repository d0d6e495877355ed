package remote

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mschirtzinger/notesync/internal/classify"
)

func TestErrorCodesAndKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind classify.Kind
	}{
		{"not found", fmt.Errorf("update: %w", ErrNotFound), classify.KindValidation},
		{"duplicate", &Error{Code: CodeDuplicate, Message: "duplicate key value violates unique constraint"}, classify.KindDatabase},
		{"rls", &Error{Code: "42501", Message: "new row violates row-level security policy"}, classify.KindPermission},
		{"jwt", &Error{Code: "PGRST301", Message: "JWT expired"}, classify.KindAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify.KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Code: CodeNotFound, Message: "no note"})
	if !errors.Is(err, ErrNotFound) {
		t.Error("errors.Is(not_found, ErrNotFound) = false")
	}
	if errors.Is(&Error{Code: CodeDuplicate}, ErrNotFound) {
		t.Error("duplicate matched ErrNotFound")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) != nil")
	}
	cause := errors.New("boom")
	var re *Error
	if !errors.As(Wrap(cause), &re) || re.Message != "boom" || !errors.Is(re, cause) {
		t.Errorf("Wrap(cause) = %#v", re)
	}
	orig := &Error{Code: "x"}
	if Wrap(orig) != error(orig) {
		t.Error("Wrap re-wrapped a remote error")
	}
}

func TestIsDuplicate(t *testing.T) {
	if !IsDuplicate(&Error{Code: CodeDuplicate}) || !IsDuplicate(&Error{Code: "SQLITE_1555"}) {
		t.Error("duplicate codes not recognized")
	}
	if IsDuplicate(errors.New("other")) {
		t.Error("plain error reported as duplicate")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Error("IsNotFound(ErrNotFound) = false")
	}
	if !IsNotFound(fmt.Errorf("failed to update note: %w", &Error{Code: CodeNotFound, Message: "gone"})) {
		t.Error("IsNotFound(wrapped) = false")
	}
	if IsNotFound(nil) || IsNotFound(&Error{Code: CodeDuplicate}) {
		t.Error("IsNotFound matched unrelated error")
	}
}
