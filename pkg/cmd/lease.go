package cmd

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/practiq/automata/pkg/lease"
	"github.com/practiq/automata/pkg/persistence"
	"github.com/practiq/automata/pkg/persistence/memory"
	"github.com/practiq/automata/pkg/persistence/postgresql"
)

// NewLeaseStore picks the execution-lease backend. An explicit Redis URL
// wins; otherwise the lease rides on the persistence layer's trigger row
// lock. The pure in-memory store is only correct for a single process.
func NewLeaseStore(ctx context.Context, logger *slog.Logger, redisURL string, pers persistence.Persistence) lease.Store {
	if redisURL != "" {
		options, err := goredis.ParseURL(redisURL)
		if err != nil {
			panic(fmt.Errorf("failed to parse redis URL: %w", err))
		}

		logger.InfoContext(ctx, "Using redis execution leases", "addr", options.Addr)

		return lease.NewRedisStore(goredis.NewClient(options))
	}

	switch p := pers.(type) {
	case *postgresql.Persistence:
		return p.LeaseStore()
	case *memory.Persistence:
		return p
	default:
		logger.WarnContext(ctx, "Persistence layer has no lease support; using in-process leases")

		return lease.NewMemoryStore()
	}
}
