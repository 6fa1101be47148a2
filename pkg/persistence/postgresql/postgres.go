// Package postgresql provides the PostgreSQL persistence implementation for
// triggers, trigger events and the progression hierarchy.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db               *sql.DB
	logger           *slog.Logger
	triggerRepo      *TriggerRepository
	triggerEventRepo *TriggerEventRepository
	progressionRepo  *ProgressionRepository
}

// NewPersistence connects, runs migrations and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:               database,
		logger:           logger,
		triggerRepo:      NewTriggerRepository(database, logger),
		triggerEventRepo: NewTriggerEventRepository(database),
		progressionRepo:  NewProgressionRepository(database),
	}, nil
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

func (p *Persistence) TriggerEventRepository() persistence.TriggerEventRepository {
	return p.triggerEventRepo
}

func (p *Persistence) ProgressionRepository() persistence.ProgressionRepository {
	return p.progressionRepo
}

// LeaseStore returns the trigger-row execution lease backed by the same
// database, so acquire/release are single conditional updates.
func (p *Persistence) LeaseStore() *TriggerLeaseStore {
	return &TriggerLeaseStore{db: p.db}
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
