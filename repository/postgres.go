package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lecture-avatar/entities"
)

// postgresStore keeps job records in Postgres while owner tokens stay
// in-process; the single-writer contract holds per process.
type postgresStore struct {
	db *gorm.DB

	mu     sync.Mutex
	tokens map[string]OwnerToken
}

func NewPostgresStore(db *sql.DB) (JobStore, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, err
	}
	if err := gormDB.AutoMigrate(&entities.Job{}); err != nil {
		return nil, err
	}
	return &postgresStore{
		db:     gormDB,
		tokens: make(map[string]OwnerToken),
	}, nil
}

func (s *postgresStore) Create(ctx context.Context, job *entities.Job) (OwnerToken, error) {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return "", err
	}

	token := OwnerToken(uuid.NewString())
	s.mu.Lock()
	s.tokens[job.ID] = token
	s.mu.Unlock()
	return token, nil
}

func (s *postgresStore) Get(ctx context.Context, id string) (*entities.Job, error) {
	job := &entities.Job{}
	err := s.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *postgresStore) List(ctx context.Context) ([]*entities.Job, error) {
	var jobs []*entities.Job
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *postgresStore) Update(ctx context.Context, id string, token OwnerToken, apply func(*entities.Job)) (*entities.Job, error) {
	s.mu.Lock()
	stored, known := s.tokens[id]
	s.mu.Unlock()

	var out *entities.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job := &entities.Job{}
		if err := tx.First(job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !known || stored != token {
			return ErrNotOwner
		}

		apply(job)
		job.UpdatedAt = time.Now()
		if err := tx.Save(job).Error; err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
