package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"note-history-server/internal/domain"
	"note-history-server/internal/repository"
)

// EventPublisher receives every version the service appends. Implementations
// must not block the caller for long.
type EventPublisher interface {
	PublishNoteVersion(event domain.NoteEvent, note *domain.NoteVersion)
}

type NoteServiceOptions struct {
	// StrictParams rejects any parameter an operation does not accept.
	StrictParams bool
	// PreserveDeletedOnUpdate carries the deleted flag forward on update
	// instead of resetting it to false.
	PreserveDeletedOnUpdate bool
	Clock                   func() time.Time
}

type NoteService struct {
	repo      repository.NoteVersionRepository
	publisher EventPublisher
	validator *ParamValidator
	locks     *idLocker
	clock     func() time.Time

	preserveDeleted bool
}

func NewNoteService(repo repository.NoteVersionRepository, publisher EventPublisher, opts NoteServiceOptions) *NoteService {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &NoteService{
		repo:            repo,
		publisher:       publisher,
		validator:       NewParamValidator(opts.StrictParams),
		locks:           newIDLocker(),
		clock:           clock,
		preserveDeleted: opts.PreserveDeletedOnUpdate,
	}
}

func (s *NoteService) Create(ctx context.Context, params domain.Params) (*domain.NoteVersion, error) {
	req, err := s.validator.CreateRequest(params)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := &domain.NoteVersion{
		Version:  1,
		Title:    req.Title,
		Content:  req.Content,
		Created:  now,
		Modified: now,
		Deleted:  false,
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	s.publish(domain.NoteCreated, note)
	return note, nil
}

func (s *NoteService) Update(ctx context.Context, params domain.Params) (*domain.NoteVersion, error) {
	req, err := s.validator.UpdateRequest(params)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	current, err := s.current(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	next := current.Next(s.stamp(current))
	if req.Title != nil {
		next.Title = *req.Title
	}
	if req.Content != nil {
		next.Content = *req.Content
	}
	if !s.preserveDeleted {
		next.Deleted = false
	}

	if err := s.repo.Append(ctx, next); err != nil {
		return nil, fmt.Errorf("update note %d: %w", req.ID, err)
	}

	s.publish(domain.NoteUpdated, next)
	return next, nil
}

// Delete appends a deleted-marking version. Deleting an already deleted
// note appends another one.
func (s *NoteService) Delete(ctx context.Context, params domain.Params) (*domain.NoteVersion, error) {
	req, err := s.validator.IDRequest(OperationDelete, params)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	current, err := s.current(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	next := current.Next(s.stamp(current))
	next.Deleted = true

	if err := s.repo.Append(ctx, next); err != nil {
		return nil, fmt.Errorf("delete note %d: %w", req.ID, err)
	}

	s.publish(domain.NoteDeleted, next)
	return next, nil
}

func (s *NoteService) Get(ctx context.Context, params domain.Params) (*domain.NoteVersion, error) {
	req, err := s.validator.IDRequest(OperationGet, params)
	if err != nil {
		return nil, err
	}

	current, err := s.current(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if current.Deleted {
		return nil, ErrNoteNotFound
	}

	return current, nil
}

func (s *NoteService) List(ctx context.Context) ([]*domain.NoteVersion, error) {
	notes, err := s.repo.CurrentVersionsOfAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if notes == nil {
		notes = []*domain.NoteVersion{}
	}
	return notes, nil
}

// History returns every version of the note, deleted-marking ones included.
// An unknown id yields an empty slice.
func (s *NoteService) History(ctx context.Context, params domain.Params) ([]*domain.NoteVersion, error) {
	req, err := s.validator.IDRequest(OperationHistory, params)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.HistoryOf(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("history of note %d: %w", req.ID, err)
	}
	if history == nil {
		history = []*domain.NoteVersion{}
	}
	return history, nil
}

func (s *NoteService) current(ctx context.Context, id int64) (*domain.NoteVersion, error) {
	current, err := s.repo.CurrentVersionOf(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("current version of note %d: %w", id, err)
	}
	return current, nil
}

func (s *NoteService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// stamp returns a modified time strictly after prev's.
func (s *NoteService) stamp(prev *domain.NoteVersion) time.Time {
	now := s.now()
	if !now.After(prev.Modified) {
		now = prev.Modified.Add(time.Microsecond)
	}
	return now
}

func (s *NoteService) publish(event domain.NoteEvent, note *domain.NoteVersion) {
	if s.publisher == nil {
		return
	}
	copied := *note
	s.publisher.PublishNoteVersion(event, &copied)
}
