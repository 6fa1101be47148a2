// Package cmd provides common initialization helpers for the command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/persistence/memory"
	"github.com/practiq/automata/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence implementation matching the
// database URL scheme. postgres:// runs migrations on startup; anything else
// falls back to the in-process store, which only makes sense for local
// development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		persistence, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return persistence
	default:
		logger.WarnContext(ctx, "Using in-memory persistence; state is lost on restart")

		return memory.NewPersistence()
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
