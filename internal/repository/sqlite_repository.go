package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"note-history-server/internal/domain"
)

type sqliteNoteVersionRepo struct {
	db *sql.DB
}

// NewSQLiteNoteVersionRepository expects a database with migrations applied.
func NewSQLiteNoteVersionRepository(db *sql.DB) NoteVersionRepository {
	return &sqliteNoteVersionRepo{db: db}
}

func (r *sqliteNoteVersionRepo) Create(ctx context.Context, v *domain.NoteVersion) error {
	if err := checkNew(v); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO note_ids (allocated_at) VALUES (?)`, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to allocate note id: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to allocate note id: %w", err)
	}

	row := clone(v)
	row.ID = id
	if err := insertSQLiteVersion(ctx, tx, row); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	v.ID = id
	return nil
}

func (r *sqliteNoteVersionRepo) Append(ctx context.Context, v *domain.NoteVersion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var latest int64
	if err := tx.QueryRowContext(ctx, selectLatestVersionNumber, v.ID).Scan(&latest); err != nil {
		return err
	}
	if err := checkSuccessor(v, latest); err != nil {
		return err
	}

	if latest == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO note_ids (id, allocated_at) VALUES (?, ?)`,
			v.ID, formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("failed to reserve note id %d: %w", v.ID, err)
		}
	}

	if err := insertSQLiteVersion(ctx, tx, v); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *sqliteNoteVersionRepo) CurrentVersionOf(ctx context.Context, id int64) (*domain.NoteVersion, error) {
	v, err := scanSQLiteVersion(r.db.QueryRowContext(ctx, selectCurrentVersionOf, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current version of note %d: %w", id, err)
	}
	return v, nil
}

func (r *sqliteNoteVersionRepo) CurrentVersionsOfAll(ctx context.Context) ([]*domain.NoteVersion, error) {
	rows, err := r.db.QueryContext(ctx, selectCurrentVersionsOfAll, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list current versions: %w", err)
	}
	return collectSQLiteVersions(rows)
}

func (r *sqliteNoteVersionRepo) HistoryOf(ctx context.Context, id int64) ([]*domain.NoteVersion, error) {
	rows, err := r.db.QueryContext(ctx, selectHistoryOf, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of note %d: %w", id, err)
	}
	return collectSQLiteVersions(rows)
}

func (r *sqliteNoteVersionRepo) Close() error {
	return r.db.Close()
}

func insertSQLiteVersion(ctx context.Context, tx *sql.Tx, v *domain.NoteVersion) error {
	_, err := tx.ExecContext(ctx, insertNoteVersion,
		v.ID, v.Version, v.Title, v.Content,
		formatTime(v.Created), formatTime(v.Modified), v.Deleted,
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("%w: note %d version %d already exists", ErrIntegrity, v.ID, v.Version)
		}
		return fmt.Errorf("failed to append note version: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVersion(s rowScanner) (*domain.NoteVersion, error) {
	var (
		v                 domain.NoteVersion
		created, modified string
	)
	if err := s.Scan(&v.ID, &v.Version, &v.Title, &v.Content, &created, &modified, &v.Deleted); err != nil {
		return nil, err
	}

	var err error
	if v.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if v.Modified, err = parseTime(modified); err != nil {
		return nil, err
	}
	return &v, nil
}

func collectSQLiteVersions(rows *sql.Rows) ([]*domain.NoteVersion, error) {
	defer rows.Close()

	out := make([]*domain.NoteVersion, 0)
	for rows.Next() {
		v, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func isUniqueConstraint(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "primary key")
}
