package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"note-history-server/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type noteVersionRecord struct {
	ID       int64     `gorm:"primaryKey;autoIncrement:false"`
	Version  int64     `gorm:"primaryKey;autoIncrement:false;check:version >= 1"`
	Title    string    `gorm:"not null"`
	Content  string    `gorm:"not null"`
	Created  time.Time `gorm:"not null"`
	Modified time.Time `gorm:"not null"`
	Deleted  bool      `gorm:"not null;default:false;index"`
}

func (noteVersionRecord) TableName() string { return "note_versions" }

type noteIDRecord struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	AllocatedAt time.Time `gorm:"not null"`
}

func (noteIDRecord) TableName() string { return "note_ids" }

type postgresNoteVersionRepo struct {
	db *gorm.DB
}

// NewPostgresNoteVersionRepository connects with GORM and migrates the schema.
func NewPostgresNoteVersionRepository(ctx context.Context, dsn string) (NoteVersionRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	repo := &postgresNoteVersionRepo{db: db}
	if err := repo.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *postgresNoteVersionRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&noteIDRecord{}, &noteVersionRecord{})
}

func (r *postgresNoteVersionRepo) Create(ctx context.Context, v *domain.NoteVersion) error {
	if err := checkNew(v); err != nil {
		return err
	}

	var id int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		identity := noteIDRecord{AllocatedAt: time.Now().UTC()}
		if err := tx.Create(&identity).Error; err != nil {
			return fmt.Errorf("failed to allocate note id: %w", err)
		}

		record := toRecord(v)
		record.ID = identity.ID
		if err := insertRecord(tx, &record); err != nil {
			return err
		}
		id = identity.ID
		return nil
	})
	if err != nil {
		return err
	}

	v.ID = id
	return nil
}

func (r *postgresNoteVersionRepo) Append(ctx context.Context, v *domain.NoteVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int64
		if err := tx.Raw(selectLatestVersionNumber, v.ID).Scan(&latest).Error; err != nil {
			return err
		}
		if err := checkSuccessor(v, latest); err != nil {
			return err
		}

		if latest == 0 {
			if err := tx.Exec(
				`INSERT INTO note_ids (id, allocated_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
				v.ID, time.Now().UTC(),
			).Error; err != nil {
				return fmt.Errorf("failed to reserve note id %d: %w", v.ID, err)
			}
			if err := tx.Exec(
				`SELECT setval(pg_get_serial_sequence('note_ids', 'id'), (SELECT MAX(id) FROM note_ids))`,
			).Error; err != nil {
				return fmt.Errorf("failed to advance note id sequence: %w", err)
			}
		}

		record := toRecord(v)
		return insertRecord(tx, &record)
	})
}

func (r *postgresNoteVersionRepo) CurrentVersionOf(ctx context.Context, id int64) (*domain.NoteVersion, error) {
	var record noteVersionRecord
	res := r.db.WithContext(ctx).Raw(selectCurrentVersionOf, id).Scan(&record)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to find current version of note %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return record.toDomain(), nil
}

func (r *postgresNoteVersionRepo) CurrentVersionsOfAll(ctx context.Context) ([]*domain.NoteVersion, error) {
	var records []noteVersionRecord
	if err := r.db.WithContext(ctx).Raw(selectCurrentVersionsOfAll, false).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list current versions: %w", err)
	}
	return toDomainSlice(records), nil
}

func (r *postgresNoteVersionRepo) HistoryOf(ctx context.Context, id int64) ([]*domain.NoteVersion, error) {
	var records []noteVersionRecord
	if err := r.db.WithContext(ctx).Raw(selectHistoryOf, id).Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list history of note %d: %w", id, err)
	}
	return toDomainSlice(records), nil
}

func (r *postgresNoteVersionRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func insertRecord(tx *gorm.DB, record *noteVersionRecord) error {
	// Select("*") keeps GORM from dropping deleted=false in favour of the
	// column default.
	if err := tx.Select("*").Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: note %d version %d already exists", ErrIntegrity, record.ID, record.Version)
		}
		return fmt.Errorf("failed to append note version: %w", err)
	}
	return nil
}

func toRecord(v *domain.NoteVersion) noteVersionRecord {
	return noteVersionRecord{
		ID:       v.ID,
		Version:  v.Version,
		Title:    v.Title,
		Content:  v.Content,
		Created:  v.Created.UTC(),
		Modified: v.Modified.UTC(),
		Deleted:  v.Deleted,
	}
}

func (r noteVersionRecord) toDomain() *domain.NoteVersion {
	return &domain.NoteVersion{
		ID:       r.ID,
		Version:  r.Version,
		Title:    r.Title,
		Content:  r.Content,
		Created:  r.Created.UTC(),
		Modified: r.Modified.UTC(),
		Deleted:  r.Deleted,
	}
}

func toDomainSlice(records []noteVersionRecord) []*domain.NoteVersion {
	out := make([]*domain.NoteVersion, len(records))
	for i := range records {
		out[i] = records[i].toDomain()
	}
	return out
}
