// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/persistence/memory"
	"github.com/chainpress/chainpress/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence layer from a database URL. A
// postgres:// URL selects PostgreSQL; "memory" selects the in-process store
// for development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch provider := parseProvider(databaseURL); provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "memory", "":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider: %s", provider)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return databaseURL
	}

	return provider
}
