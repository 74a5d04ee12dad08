package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"note-history-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
)

const (
	sequenceDocID        = "seq:notes"
	noteDocPrefix        = "note:"
	highCollationSuffix  = "\ufff0"
	maxSequenceAttempts  = 16
	couchNoteVersionType = "note_version"
)

// One document per version. The doc id sorts by (id, version), so _all_docs
// ranges give history and current version without views.
type couchNoteVersion struct {
	DocID    string    `json:"_id,omitempty"`
	Rev      string    `json:"_rev,omitempty"`
	Type     string    `json:"type"`
	NoteID   int64     `json:"note_id"`
	Version  int64     `json:"version"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Deleted  bool      `json:"deleted"`
}

type couchSequence struct {
	Rev   string `json:"_rev,omitempty"`
	Value int64  `json:"value"`
}

type couchNoteVersionRepo struct {
	client *kivik.Client
	dbName string
}

// NewCouchNoteVersionRepository creates dbName when it does not exist.
func NewCouchNoteVersionRepository(ctx context.Context, client *kivik.Client, dbName string) (NoteVersionRepository, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &couchNoteVersionRepo{
		client: client,
		dbName: dbName,
	}, nil
}

func noteDocID(id, version int64) string {
	return fmt.Sprintf("%s%012d:%08d", noteDocPrefix, id, version)
}

func notePrefix(id int64) string {
	return fmt.Sprintf("%s%012d:", noteDocPrefix, id)
}

func (r *couchNoteVersionRepo) Create(ctx context.Context, v *domain.NoteVersion) error {
	if err := checkNew(v); err != nil {
		return err
	}

	id, err := r.allocateID(ctx)
	if err != nil {
		return err
	}

	row := clone(v)
	row.ID = id
	if err := r.put(ctx, row); err != nil {
		return err
	}

	v.ID = id
	return nil
}

func (r *couchNoteVersionRepo) Append(ctx context.Context, v *domain.NoteVersion) error {
	var latest int64
	current, err := r.CurrentVersionOf(ctx, v.ID)
	switch {
	case err == nil:
		latest = current.Version
	case !errors.Is(err, ErrNotFound):
		return err
	}

	if err := checkSuccessor(v, latest); err != nil {
		return err
	}
	if latest == 0 {
		if err := r.reserveID(ctx, v.ID); err != nil {
			return err
		}
	}

	return r.put(ctx, v)
}

// put never sends a revision, so CouchDB rejects an existing (id, version)
// with 409.
func (r *couchNoteVersionRepo) put(ctx context.Context, v *domain.NoteVersion) error {
	db := r.client.DB(r.dbName)

	docID := noteDocID(v.ID, v.Version)
	doc := couchNoteVersion{
		DocID:    docID,
		Type:     couchNoteVersionType,
		NoteID:   v.ID,
		Version:  v.Version,
		Title:    v.Title,
		Content:  v.Content,
		Created:  v.Created.UTC(),
		Modified: v.Modified.UTC(),
		Deleted:  v.Deleted,
	}

	if _, err := db.Put(ctx, docID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return fmt.Errorf("%w: note %d version %d already exists", ErrIntegrity, v.ID, v.Version)
		}
		return fmt.Errorf("failed to append note version: %w", err)
	}

	return nil
}

func (r *couchNoteVersionRepo) CurrentVersionOf(ctx context.Context, id int64) (*domain.NoteVersion, error) {
	versions, err := r.scan(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"descending":   true,
		"startkey":     notePrefix(id) + highCollationSuffix,
		"endkey":       notePrefix(id),
		"limit":        1,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to find current version of note %d: %w", id, err)
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions[0], nil
}

func (r *couchNoteVersionRepo) CurrentVersionsOfAll(ctx context.Context) ([]*domain.NoteVersion, error) {
	all, err := r.scan(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"startkey":     noteDocPrefix,
		"endkey":       noteDocPrefix + highCollationSuffix,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list current versions: %w", err)
	}

	// Rows arrive ordered by (id, version): the last row of each id run is
	// its current version.
	current := make([]*domain.NoteVersion, 0)
	for i, v := range all {
		if i+1 < len(all) && all[i+1].ID == v.ID {
			continue
		}
		if !v.Deleted {
			current = append(current, v)
		}
	}

	return current, nil
}

func (r *couchNoteVersionRepo) HistoryOf(ctx context.Context, id int64) ([]*domain.NoteVersion, error) {
	versions, err := r.scan(ctx, kivik.Params(map[string]interface{}{
		"include_docs": true,
		"startkey":     notePrefix(id),
		"endkey":       notePrefix(id) + highCollationSuffix,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to list history of note %d: %w", id, err)
	}
	return versions, nil
}

func (r *couchNoteVersionRepo) Close() error {
	return r.client.Close()
}

func (r *couchNoteVersionRepo) scan(ctx context.Context, options ...kivik.Option) ([]*domain.NoteVersion, error) {
	db := r.client.DB(r.dbName)

	rows := db.AllDocs(ctx, options...)
	if err := rows.Err(); err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]*domain.NoteVersion, 0)
	for rows.Next() {
		var doc couchNoteVersion
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, err
		}
		versions = append(versions, &domain.NoteVersion{
			ID:       doc.NoteID,
			Version:  doc.Version,
			Title:    doc.Title,
			Content:  doc.Content,
			Created:  doc.Created.UTC(),
			Modified: doc.Modified.UTC(),
			Deleted:  doc.Deleted,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return versions, nil
}

// allocateID bumps the sequence document with optimistic revision checks.
func (r *couchNoteVersionRepo) allocateID(ctx context.Context) (int64, error) {
	var allocated int64
	err := r.updateSequence(ctx, func(current int64) int64 {
		allocated = current + 1
		return allocated
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate note id: %w", err)
	}
	return allocated, nil
}

func (r *couchNoteVersionRepo) reserveID(ctx context.Context, id int64) error {
	err := r.updateSequence(ctx, func(current int64) int64 {
		if id > current {
			return id
		}
		return current
	})
	if err != nil {
		return fmt.Errorf("failed to reserve note id %d: %w", id, err)
	}
	return nil
}

func (r *couchNoteVersionRepo) updateSequence(ctx context.Context, next func(current int64) int64) error {
	db := r.client.DB(r.dbName)

	for attempt := 0; attempt < maxSequenceAttempts; attempt++ {
		var seq couchSequence
		if err := db.Get(ctx, sequenceDocID).ScanDoc(&seq); err != nil {
			if kivik.HTTPStatus(err) != http.StatusNotFound {
				return err
			}
			seq = couchSequence{}
		}

		value := next(seq.Value)
		if value == seq.Value {
			return nil
		}
		seq.Value = value

		_, err := db.Put(ctx, sequenceDocID, seq)
		if err == nil {
			return nil
		}
		if kivik.HTTPStatus(err) != http.StatusConflict {
			return err
		}
	}

	return fmt.Errorf("sequence document still contended after %d attempts", maxSequenceAttempts)
}
