package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/google/uuid"
)

// DefinitionRepository handles the definition side of the schema:
// automations, contents, triggers and step trees.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

func (r *DefinitionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func (r *DefinitionRepository) Automations(ctx context.Context) ([]*models.Automation, error) {
	query := `
		SELECT
			id
		  , name
		  , active
		  , created_at
		  , updated_at
		FROM automations
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer r.closeRows(ctx, rows)

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation := &models.Automation{}

		err := rows.Scan(
			&automation.ID,
			&automation.Name,
			&automation.Active,
			&automation.CreatedAt,
			&automation.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

func (r *DefinitionRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `
		SELECT
			id
		  , name
		  , active
		  , created_at
		  , updated_at
		FROM automations
		WHERE id = $1
	`

	automation := &models.Automation{}

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&automation.ID,
		&automation.Name,
		&automation.Active,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

func (r *DefinitionRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.ID == "" {
		automation.ID = uuid.New().String()
	}

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	query := `
		INSERT INTO automations (id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		automation.ID, automation.Name, automation.Active,
		automation.CreatedAt, automation.UpdatedAt)
	if err != nil {
		return persistence.NewAutomationError("Save", automation.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) DeleteAutomation(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automations WHERE id = $1", id)
	if err != nil {
		return persistence.NewAutomationError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewAutomationError("Delete", id, persistence.ErrAutomationNotFound)
	}

	return nil
}

func (r *DefinitionRepository) ContentByID(ctx context.Context, id string) (*models.AutomationContent, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , description
		  , created_at
		FROM automation_contents
		WHERE id = $1
	`

	content := &models.AutomationContent{}

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&content.ID,
		&content.AutomationID,
		&content.Description,
		&content.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContentNotFound
		}

		return nil, fmt.Errorf("failed to scan content: %w", err)
	}

	return content, nil
}

func (r *DefinitionRepository) ContentsByAutomation(ctx context.Context, automationID string) ([]*models.AutomationContent, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , description
		  , created_at
		FROM automation_contents
		WHERE automation_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contents: %w", err)
	}

	defer r.closeRows(ctx, rows)

	contents := make([]*models.AutomationContent, 0)

	for rows.Next() {
		content := &models.AutomationContent{}

		err := rows.Scan(&content.ID, &content.AutomationID, &content.Description, &content.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}

		contents = append(contents, content)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating contents: %w", err)
	}

	return contents, nil
}

func (r *DefinitionRepository) SaveContent(ctx context.Context, content *models.AutomationContent) error {
	if content.ID == "" {
		content.ID = uuid.New().String()
	}

	if content.CreatedAt.IsZero() {
		content.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO automation_contents (id, automation_id, description, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description
	`

	_, err := r.db.ExecContext(ctx, query,
		content.ID, content.AutomationID, content.Description, content.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save content %s: %w", content.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) StepsByContent(ctx context.Context, contentID string) ([]*models.StepRecord, error) {
	query := `
		SELECT
			id
		  , content_id
		  , slot
		  , parent_id
		  , position
		  , kind
		  , config
		  , comment
		FROM steps
		WHERE content_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer r.closeRows(ctx, rows)

	steps := make([]*models.StepRecord, 0)

	for rows.Next() {
		step := &models.StepRecord{}

		var (
			parentID  sql.NullString
			configRaw []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.ContentID,
			&step.Slot,
			&parentID,
			&step.Position,
			&step.Kind,
			&configRaw,
			&step.Comment,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		if parentID.Valid {
			step.ParentID = &parentID.String
		}

		if err := json.Unmarshal(configRaw, &step.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *DefinitionRepository) SaveStep(ctx context.Context, step *models.StepRecord) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	config, err := marshalJSONMap(step.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal step config: %w", err)
	}

	query := `
		INSERT INTO steps (id, content_id, slot, parent_id, position, kind, config, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			slot = EXCLUDED.slot
		  , parent_id = EXCLUDED.parent_id
		  , position = EXCLUDED.position
		  , kind = EXCLUDED.kind
		  , config = EXCLUDED.config
		  , comment = EXCLUDED.comment
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID, step.ContentID, step.Slot, step.ParentID,
		step.Position, step.Kind, config, step.Comment)
	if err != nil {
		return fmt.Errorf("failed to save step %s: %w", step.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) DeleteStep(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM steps WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete step %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrStepNotFound
	}

	return nil
}

func (r *DefinitionRepository) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	query := `
		SELECT
			id
		  , content_id
		  , slot
		  , type
		  , config
		  , position
		FROM triggers
		WHERE id = $1
	`

	trigger := &models.Trigger{}

	var configRaw []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&trigger.ID,
		&trigger.ContentID,
		&trigger.Slot,
		&trigger.Type,
		&configRaw,
		&trigger.Position,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTriggerNotFound
		}

		return nil, fmt.Errorf("failed to scan trigger: %w", err)
	}

	if err := json.Unmarshal(configRaw, &trigger.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	return trigger, nil
}

func (r *DefinitionRepository) TriggersByContent(ctx context.Context, contentID string) ([]*models.Trigger, error) {
	query := `
		SELECT
			id
		  , content_id
		  , slot
		  , type
		  , config
		  , position
		FROM triggers
		WHERE content_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	triggers := make([]*models.Trigger, 0)

	for rows.Next() {
		trigger := &models.Trigger{}

		var configRaw []byte

		err := rows.Scan(
			&trigger.ID,
			&trigger.ContentID,
			&trigger.Slot,
			&trigger.Type,
			&configRaw,
			&trigger.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		if err := json.Unmarshal(configRaw, &trigger.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}

		triggers = append(triggers, trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *DefinitionRepository) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	config, err := marshalJSONMap(trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	query := `
		INSERT INTO triggers (id, content_id, slot, type, config, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			slot = EXCLUDED.slot
		  , type = EXCLUDED.type
		  , config = EXCLUDED.config
		  , position = EXCLUDED.position
	`

	_, err = r.db.ExecContext(ctx, query,
		trigger.ID, trigger.ContentID, trigger.Slot, trigger.Type, config, trigger.Position)
	if err != nil {
		return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) DeleteTrigger(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

// marshalJSONMap marshals a possibly nil map to JSON, nil becoming an empty
// object.
func marshalJSONMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(m)
}
