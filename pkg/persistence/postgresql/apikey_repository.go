package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/google/uuid"
)

// APIKeyRepository stores service credentials.
type APIKeyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewAPIKeyRepository(db *sql.DB, logger *slog.Logger) *APIKeyRepository {
	return &APIKeyRepository{db: db, logger: logger}
}

// ByService returns the active keys for one service, ordered by name.
func (r *APIKeyRepository) ByService(ctx context.Context, service string) ([]*models.APIKey, error) {
	query := `
		SELECT
			id
		  , name
		  , service
		  , key
		  , description
		  , active
		  , created_at
		  , updated_at
		FROM api_keys
		WHERE service = $1 AND active = TRUE
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, service)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	keys := make([]*models.APIKey, 0)

	for rows.Next() {
		key := &models.APIKey{}

		err := rows.Scan(
			&key.ID,
			&key.Name,
			&key.Service,
			&key.Key,
			&key.Description,
			&key.Active,
			&key.CreatedAt,
			&key.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}

		keys = append(keys, key)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating api keys: %w", err)
	}

	return keys, nil
}

func (r *APIKeyRepository) Save(ctx context.Context, key *models.APIKey) error {
	now := time.Now().UTC()

	if key.ID == "" {
		key.ID = uuid.New().String()
	}

	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}

	key.UpdatedAt = now

	query := `
		INSERT INTO api_keys (id, name, service, key, description, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , service = EXCLUDED.service
		  , key = EXCLUDED.key
		  , description = EXCLUDED.description
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.Name, key.Service, key.Key,
		key.Description, key.Active, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save api key %s: %w", key.ID, err)
	}

	return nil
}
