package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/jadujoel/pressure-observer/internal/pressure"

	_ "github.com/mattn/go-sqlite3"
)

type Repository interface {
	Store(ctx context.Context, records []pressure.Record) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS pressure_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            time REAL NOT NULL,
            source TEXT NOT NULL,
            state TEXT NOT NULL
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrStorageInit, err)
	}

	return nil
}

func (r *sqliteRepository) Store(ctx context.Context, records []pressure.Record) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	for _, record := range records {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO pressure_records (time, source, state) VALUES (?, ?, ?)
        `,
			record.Time,
			record.Source.String(),
			record.State.String(),
		)
		if err != nil {
			tx.Rollback()
			return errFactory.Wrap(ErrStorageAccess, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
