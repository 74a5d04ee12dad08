package repository

import (
	"context"
	"errors"
	"fmt"

	"note-history-server/internal/domain"
)

var (
	ErrNotFound  = errors.New("note version not found")
	ErrIntegrity = errors.New("note version integrity violation")
)

// NoteVersionRepository is an append-only store of note versions. Rows are
// never updated or removed once written.
type NoteVersionRepository interface {
	// Create allocates a fresh monotonic id, assigns it to v and writes v as
	// version 1.
	Create(ctx context.Context, v *domain.NoteVersion) error
	// Append writes v. v.Version must be one past the highest stored version
	// of v.ID, or 1 when the id has no rows yet; otherwise ErrIntegrity.
	Append(ctx context.Context, v *domain.NoteVersion) error
	// CurrentVersionOf returns the highest version of id, deleted or not.
	CurrentVersionOf(ctx context.Context, id int64) (*domain.NoteVersion, error)
	// CurrentVersionsOfAll returns the current version of every id whose
	// current version is not deleted, ordered by id.
	CurrentVersionsOfAll(ctx context.Context) ([]*domain.NoteVersion, error)
	// HistoryOf returns every version of id ordered by version. Unknown ids
	// yield an empty slice.
	HistoryOf(ctx context.Context, id int64) ([]*domain.NoteVersion, error)
	Close() error
}

func checkNew(v *domain.NoteVersion) error {
	if v.Version != 1 {
		return fmt.Errorf("%w: new note must start at version 1, got %d", ErrIntegrity, v.Version)
	}
	return nil
}

func checkSuccessor(v *domain.NoteVersion, latest int64) error {
	if v.ID <= 0 {
		return fmt.Errorf("%w: invalid note id %d", ErrIntegrity, v.ID)
	}
	if v.Version != latest+1 {
		return fmt.Errorf("%w: note %d version %d does not follow version %d", ErrIntegrity, v.ID, v.Version, latest)
	}
	return nil
}

func clone(v *domain.NoteVersion) *domain.NoteVersion {
	c := *v
	return &c
}
