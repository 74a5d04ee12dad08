package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"note-history-server/internal/domain"
	"note-history-server/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	event domain.NoteEvent
	note  *domain.NoteVersion
}

type mockPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (m *mockPublisher) PublishNoteVersion(event domain.NoteEvent, note *domain.NoteVersion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{event: event, note: note})
}

// frozenClock never advances, so every stamp relies on the 1µs bump.
func frozenClock() func() time.Time {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestService(t *testing.T, opts NoteServiceOptions) (*NoteService, repository.NoteVersionRepository, *mockPublisher) {
	t.Helper()
	repo := repository.NewMemoryNoteVersionRepository()
	publisher := &mockPublisher{}
	return NewNoteService(repo, publisher, opts), repo, publisher
}

func jsonID(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}

func TestNoteService_Create(t *testing.T) {
	svc, _, publisher := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	note, err := svc.Create(ctx, domain.Params{"title": "test_note1", "content": "test_content1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), note.ID)
	assert.Equal(t, int64(1), note.Version)
	assert.False(t, note.Deleted)
	assert.Equal(t, note.Created, note.Modified)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "test_note1", list[0].Title)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, domain.NoteCreated, publisher.events[0].event)
}

func TestNoteService_CreateRejectsExtraParams(t *testing.T) {
	svc, repo, publisher := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Params{"title": "a", "content": "b", "id": jsonID(5)})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, OperationCreate, verr.Operation)
	assert.Equal(t, "bad request, this endpoint accepts exactly two parameters: 'title' and 'content'", verr.Message)

	all, err := repo.CurrentVersionsOfAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, publisher.events)
}

func TestNoteService_LooseParamsIgnoreUnknownKeys(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: false})
	ctx := context.Background()

	note, err := svc.Create(ctx, domain.Params{"title": "a", "content": "b", "tags": "x"})
	require.NoError(t, err)
	assert.Equal(t, "a", note.Title)

	_, err = svc.Create(ctx, domain.Params{"title": "a"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestNoteService_UpdateAppendsVersion(t *testing.T) {
	svc, _, publisher := newTestService(t, NoteServiceOptions{StrictParams: true, Clock: frozenClock()})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "test_note1", "content": "test_content1"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, domain.Params{
		"id":      jsonID(created.ID),
		"title":   "updated_test_note1",
		"content": "updated_test_content1",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "updated_test_note1", updated.Title)

	history, err := svc.History(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Version)
	assert.Equal(t, int64(2), history[1].Version)
	assert.True(t, history[0].Created.Equal(history[1].Created))
	assert.True(t, history[1].Modified.After(history[0].Modified))

	require.Len(t, publisher.events, 2)
	assert.Equal(t, domain.NoteUpdated, publisher.events[1].event)
}

func TestNoteService_PartialUpdateFallsBack(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "content": "c2"})
	require.NoError(t, err)
	assert.Equal(t, "t", updated.Title)
	assert.Equal(t, "c2", updated.Content)
}

func TestNoteService_UpdateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	tests := []struct {
		name   string
		params domain.Params
	}{
		{"id only", domain.Params{"id": jsonID(1)}},
		{"missing id", domain.Params{"title": "t"}},
		{"unknown key", domain.Params{"id": jsonID(1), "title": "t", "deleted": true}},
		{"non integer id", domain.Params{"id": json.Number("1.5"), "title": "t"}},
		{"empty title", domain.Params{"id": jsonID(1), "title": ""}},
		{"title not a string", domain.Params{"id": jsonID(1), "title": json.Number("3")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.params)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, Message(OperationUpdate), verr.Message)
		})
	}
}

func TestNoteService_UpdateUnknownNote(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})

	_, err := svc.Update(context.Background(), domain.Params{"id": jsonID(99), "title": "t"})
	assert.ErrorIs(t, err, ErrNoteNotFound)
}

func TestNoteService_DeleteIsAppend(t *testing.T) {
	svc, _, publisher := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "title": "t2"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted.Version)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, "t2", deleted.Title)
	assert.Equal(t, "c", deleted.Content)

	_, err = svc.Get(ctx, domain.Params{"id": jsonID(created.ID)})
	assert.ErrorIs(t, err, ErrNoteNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	history, err := svc.History(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.False(t, history[0].Deleted)
	assert.Equal(t, "t", history[0].Title)
	assert.True(t, history[2].Deleted)

	assert.Equal(t, domain.NoteDeleted, publisher.events[len(publisher.events)-1].event)
}

func TestNoteService_RedeleteAppendsAgain(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	again, err := svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Version)
	assert.True(t, again.Deleted)
}

func TestNoteService_UpdateDeletedNote(t *testing.T) {
	ctx := context.Background()

	t.Run("resets deleted by default", func(t *testing.T) {
		svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
		created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
		require.NoError(t, err)
		_, err = svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
		require.NoError(t, err)

		revived, err := svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "title": "back"})
		require.NoError(t, err)
		assert.False(t, revived.Deleted)

		got, err := svc.Get(ctx, domain.Params{"id": jsonID(created.ID)})
		require.NoError(t, err)
		assert.Equal(t, "back", got.Title)
	})

	t.Run("preserves deleted when configured", func(t *testing.T) {
		svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true, PreserveDeletedOnUpdate: true})
		created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
		require.NoError(t, err)
		_, err = svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
		require.NoError(t, err)

		updated, err := svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "title": "still gone"})
		require.NoError(t, err)
		assert.True(t, updated.Deleted)
		assert.Equal(t, int64(3), updated.Version)

		_, err = svc.Get(ctx, domain.Params{"id": jsonID(created.ID)})
		assert.ErrorIs(t, err, ErrNoteNotFound)
	})
}

func TestNoteService_ListExcludesDeleted(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	kept, err := svc.Create(ctx, domain.Params{"title": "kept", "content": "c"})
	require.NoError(t, err)
	gone, err := svc.Create(ctx, domain.Params{"title": "gone", "content": "c"})
	require.NoError(t, err)
	_, err = svc.Delete(ctx, domain.Params{"id": jsonID(gone.ID)})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kept.ID, list[0].ID)
}

func TestNoteService_HistoryUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})

	history, err := svc.History(context.Background(), domain.Params{"id": "999"})
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestNoteService_ListEmpty(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNoteService_VersionMonotonicity(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true, Clock: frozenClock()})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)

	const updates = 10
	for i := 0; i < updates; i++ {
		_, err := svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "content": strconv.Itoa(i)})
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	require.Len(t, history, updates+1)
	for i, v := range history {
		assert.Equal(t, int64(i+1), v.Version)
		assert.True(t, v.Created.Equal(created.Created))
		if i > 0 {
			assert.True(t, v.Modified.After(history[i-1].Modified))
		}
	}
}

func TestNoteService_ConcurrentUpdatesSerializePerID(t *testing.T) {
	svc, _, _ := newTestService(t, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "content": strconv.Itoa(i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	history, err := svc.History(ctx, domain.Params{"id": jsonID(created.ID)})
	require.NoError(t, err)
	require.Len(t, history, writers+1)
	for i, v := range history {
		assert.Equal(t, int64(i+1), v.Version)
	}
	assert.Zero(t, svc.locks.size())
}

type failingRepo struct {
	repository.NoteVersionRepository
	err error
}

func (f *failingRepo) Append(ctx context.Context, v *domain.NoteVersion) error {
	return f.err
}

func TestNoteService_IntegrityErrorPropagates(t *testing.T) {
	inner := repository.NewMemoryNoteVersionRepository()
	repo := &failingRepo{NoteVersionRepository: inner, err: repository.ErrIntegrity}
	publisher := &mockPublisher{}
	svc := NewNoteService(repo, publisher, NoteServiceOptions{StrictParams: true})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.Params{"title": "t", "content": "c"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, domain.Params{"id": jsonID(created.ID), "title": "t2"})
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Len(t, publisher.events, 1)

	storeDown := errors.New("connection reset")
	repo.err = storeDown
	_, err = svc.Delete(ctx, domain.Params{"id": jsonID(created.ID)})
	assert.ErrorIs(t, err, storeDown)
}
