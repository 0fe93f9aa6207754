// Package gormstore implements domain.Store with GORM, for deployments
// that keep synced designs in PostgreSQL. SQLite is supported too, mostly
// so the store can be tested without a database server.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/roach88/fusionsync/internal/domain"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store is a GORM-backed domain.Store.
type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// Open connects with the named driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %s or %s)", driver, DriverPostgres, DriverSQLite)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Unique violations come back as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithinTx runs fn inside db.Transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return translate(err)
}

// RecordRun appends a run. Re-recording a run id is a no-op.
func (s *Store) RecordRun(ctx context.Context, run domain.SyncRun) error {
	m := syncRunModel{
		RunID:         run.ID,
		DesignUUID:    run.DesignUUID,
		PayloadDigest: run.PayloadDigest,
		Status:        string(run.Status),
		ErrorCode:     run.ErrorCode,
		ErrorMessage:  run.ErrorMessage,
		Created:       run.Created,
		Updated:       run.Updated,
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    run.FinishedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, most recently recorded first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	q := s.db.WithContext(ctx).Order("pos DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows := make([]syncRunModel, 0)
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]domain.SyncRun, 0, len(rows))
	for _, m := range rows {
		runs = append(runs, m.toDomain())
	}
	return runs, nil
}

// ListEvents returns the committed events of a run in seq order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]domain.SyncEvent, error) {
	var rows []syncEventModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var events []domain.SyncEvent
	for _, m := range rows {
		events = append(events, m.toDomain())
	}
	return events, nil
}

// translate maps GORM sentinel errors to domain errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	default:
		return err
	}
}
