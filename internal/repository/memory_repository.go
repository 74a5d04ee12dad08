package repository

import (
	"context"
	"sort"
	"sync"

	"note-history-server/internal/domain"
)

type memoryNoteVersionRepo struct {
	mu       sync.RWMutex
	lastID   int64
	versions map[int64][]*domain.NoteVersion
}

func NewMemoryNoteVersionRepository() NoteVersionRepository {
	return &memoryNoteVersionRepo{
		versions: make(map[int64][]*domain.NoteVersion),
	}
}

func (r *memoryNoteVersionRepo) Create(ctx context.Context, v *domain.NoteVersion) error {
	if err := checkNew(v); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	v.ID = r.lastID
	r.versions[v.ID] = []*domain.NoteVersion{clone(v)}

	return nil
}

func (r *memoryNoteVersionRepo) Append(ctx context.Context, v *domain.NoteVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.versions[v.ID]
	if err := checkSuccessor(v, int64(len(rows))); err != nil {
		return err
	}

	r.versions[v.ID] = append(rows, clone(v))
	if v.ID > r.lastID {
		r.lastID = v.ID
	}

	return nil
}

func (r *memoryNoteVersionRepo) CurrentVersionOf(ctx context.Context, id int64) (*domain.NoteVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.versions[id]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	return clone(rows[len(rows)-1]), nil
}

func (r *memoryNoteVersionRepo) CurrentVersionsOfAll(ctx context.Context) ([]*domain.NoteVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := make([]*domain.NoteVersion, 0, len(r.versions))
	for _, rows := range r.versions {
		latest := rows[len(rows)-1]
		if latest.Deleted {
			continue
		}
		current = append(current, clone(latest))
	}

	sort.Slice(current, func(i, j int) bool {
		return current[i].ID < current[j].ID
	})

	return current, nil
}

func (r *memoryNoteVersionRepo) HistoryOf(ctx context.Context, id int64) ([]*domain.NoteVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.versions[id]
	history := make([]*domain.NoteVersion, len(rows))
	for i, v := range rows {
		history[i] = clone(v)
	}

	return history, nil
}

func (r *memoryNoteVersionRepo) Close() error {
	return nil
}
