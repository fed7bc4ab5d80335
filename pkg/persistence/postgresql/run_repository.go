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

// RunRepository handles the execution side of the schema: instances and
// their actions.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

const instanceColumns = `
	id
  , content_id
  , initial_data
  , data
  , key
  , testing
  , created_at
  , updated_at
`

const actionColumns = `
	id
  , instance_id
  , plugin_ptr
  , state
  , previous_id
  , parent_id
  , paused_until
  , locked
  , claimed_at
  , requires_interaction
  , interaction_user_id
  , interaction_group_id
  , interaction_permissions
  , created_at
  , finished
  , message
  , result
`

// CreateRun persists the instance and its first action in one transaction.
func (r *RunRepository) CreateRun(ctx context.Context, instance *models.Instance, action *models.Action) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin run transaction: %w", err)
	}

	err = r.saveInstance(ctx, transaction, instance)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to create instance: %w", err)
	}

	err = r.insertAction(ctx, transaction, action)
	if err != nil {
		_ = transaction.Rollback()

		return fmt.Errorf("failed to create first action: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit run transaction: %w", err)
	}

	return nil
}

func (r *RunRepository) InstanceByID(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *RunRepository) InstancesByContent(ctx context.Context, contentID string) ([]*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM instances WHERE content_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer r.closeRows(ctx, rows)

	instances := make([]*models.Instance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

func (r *RunRepository) SaveInstance(ctx context.Context, instance *models.Instance) error {
	return r.saveInstance(ctx, r.db, instance)
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RunRepository) saveInstance(ctx context.Context, db execer, instance *models.Instance) error {
	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	if instance.UpdatedAt.IsZero() {
		instance.UpdatedAt = now
	}

	initialData, err := marshalJSONMap(instance.InitialData)
	if err != nil {
		return fmt.Errorf("failed to marshal initial data: %w", err)
	}

	data, err := marshalJSONMap(instance.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	query := `
		INSERT INTO instances (id, content_id, initial_data, data, key, testing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		instance.ID, instance.ContentID, initialData, data,
		instance.Key, instance.Testing, instance.CreatedAt, instance.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.ID, err)
	}

	return nil
}

func (r *RunRepository) ActionByID(ctx context.Context, id string) (*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`

	action, err := scanAction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewActionError("GetByID", id, persistence.ErrActionNotFound)
		}

		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	return action, nil
}

func (r *RunRepository) ActionsByInstance(ctx context.Context, instanceID string) ([]*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE instance_id = $1 ORDER BY created_at`

	return r.queryActions(ctx, query, instanceID)
}

func (r *RunRepository) ChildActions(ctx context.Context, parentID string) ([]*models.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE parent_id = $1 ORDER BY created_at`

	return r.queryActions(ctx, query, parentID)
}

func (r *RunRepository) HasSuccessor(ctx context.Context, actionID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM actions WHERE previous_id = $1)", actionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query successors of action %s: %w", actionID, err)
	}

	return exists, nil
}

func (r *RunRepository) CreateAction(ctx context.Context, action *models.Action) error {
	return r.insertAction(ctx, r.db, action)
}

func (r *RunRepository) insertAction(ctx context.Context, db execer, action *models.Action) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	result, err := marshalJSONMap(action.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal action result: %w", err)
	}

	permissions, err := json.Marshal(action.InteractionPermissions)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction permissions: %w", err)
	}

	query := `
		INSERT INTO actions (
			id, instance_id, plugin_ptr, state, previous_id, parent_id,
			paused_until, locked, claimed_at, requires_interaction,
			interaction_user_id, interaction_group_id,
			interaction_permissions, created_at, finished, message, result
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = db.ExecContext(ctx, query,
		action.ID, action.InstanceID, action.PluginPtr, action.State,
		action.PreviousID, action.ParentID, action.PausedUntil, action.Locked,
		action.ClaimedAt, action.RequiresInteraction, action.InteractionUserID,
		action.InteractionGroupID, permissions, action.CreatedAt,
		action.Finished, action.Message, result)
	if err != nil {
		return persistence.NewActionError("Create", action.ID, err)
	}

	return nil
}

func (r *RunRepository) SaveAction(ctx context.Context, action *models.Action) error {
	result, err := marshalJSONMap(action.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal action result: %w", err)
	}

	permissions, err := json.Marshal(action.InteractionPermissions)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction permissions: %w", err)
	}

	query := `
		UPDATE actions SET
			state = $2
		  , paused_until = $3
		  , locked = $4
		  , claimed_at = $5
		  , requires_interaction = $6
		  , interaction_user_id = $7
		  , interaction_group_id = $8
		  , interaction_permissions = $9
		  , finished = $10
		  , message = $11
		  , result = $12
		WHERE id = $1
	`

	updated, err := r.db.ExecContext(ctx, query,
		action.ID, action.State, action.PausedUntil, action.Locked,
		action.ClaimedAt, action.RequiresInteraction, action.InteractionUserID,
		action.InteractionGroupID, permissions,
		action.Finished, action.Message, result)
	if err != nil {
		return persistence.NewActionError("Save", action.ID, err)
	}

	affected, err := updated.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewActionError("Save", action.ID, persistence.ErrActionNotFound)
	}

	return nil
}

// ClaimAction atomically marks an unfinished, unpaused action RUNNING with
// the lock counter and claim time set. The single UPDATE re-validates every
// condition, so two workers racing on the same activation cannot both claim
// it. A claim older than the lease no longer blocks, so an action whose
// worker died mid-execution becomes claimable again on the next sweep.
func (r *RunRepository) ClaimAction(ctx context.Context, actionID, pluginPtr string) (*models.Action, bool, error) {
	query := `
		UPDATE actions SET
			state = $3
		  , locked = 1
		  , claimed_at = NOW()
		WHERE id = $1
		  AND plugin_ptr = $2
		  AND finished IS NULL
		  AND (locked = 0 OR claimed_at <= $4)
		  AND (paused_until IS NULL OR paused_until <= NOW())
		RETURNING ` + actionColumns

	staleBefore := time.Now().UTC().Add(-persistence.StaleClaimAfter)

	action, err := scanAction(r.db.QueryRowContext(ctx, query, actionID, pluginPtr, models.ActionStateRunning, staleBefore))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, persistence.NewActionError("Claim", actionID, err)
	}

	return action, true, nil
}

// DueActions returns unfinished, unclaimed actions of active, non-testing
// instances whose pause deadline has passed and which are not waiting on a
// human.
func (r *RunRepository) DueActions(ctx context.Context, now time.Time) ([]*models.Action, error) {
	query := `
		SELECT
			a.id
		  , a.instance_id
		  , a.plugin_ptr
		  , a.state
		  , a.previous_id
		  , a.parent_id
		  , a.paused_until
		  , a.locked
		  , a.requires_interaction
		  , a.interaction_user_id
		  , a.interaction_group_id
		  , a.interaction_permissions
		  , a.created_at
		  , a.finished
		  , a.message
		  , a.result
		FROM actions a
		JOIN instances i ON i.id = a.instance_id
		JOIN automation_contents c ON c.id = i.content_id
		JOIN automations au ON au.id = c.automation_id
		WHERE a.finished IS NULL
		  AND a.requires_interaction = FALSE
		  AND (a.paused_until IS NULL OR a.paused_until <= $1)
		  AND i.testing = FALSE
		  AND au.active = TRUE
		ORDER BY a.created_at
	`

	return r.queryActions(ctx, query, now)
}

func (r *RunRepository) OpenInteractionActions(ctx context.Context, userID, groupID string) ([]*models.Action, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM actions
		WHERE finished IS NULL
		  AND requires_interaction = TRUE
		  AND ($1 = '' OR interaction_user_id = $1)
		  AND ($2 = '' OR interaction_group_id = $2)
		ORDER BY created_at
	`

	return r.queryActions(ctx, query, userID, groupID)
}

// DeleteFinishedInstancesBefore removes instances untouched since the cutoff
// whose actions all finished. Their actions cascade.
func (r *RunRepository) DeleteFinishedInstancesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM instances i
		WHERE i.updated_at <= $1
		  AND EXISTS (SELECT 1 FROM actions a WHERE a.instance_id = i.id)
		  AND NOT EXISTS (
			SELECT 1 FROM actions a
			WHERE a.instance_id = i.id AND a.finished IS NULL
		  )
	`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished instances: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *RunRepository) queryActions(ctx context.Context, query string, args ...any) ([]*models.Action, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	actions := make([]*models.Action, 0)

	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		actions = append(actions, action)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*models.Instance, error) {
	instance := &models.Instance{}

	var initialData, data []byte

	err := row.Scan(
		&instance.ID,
		&instance.ContentID,
		&initialData,
		&data,
		&instance.Key,
		&instance.Testing,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(initialData, &instance.InitialData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal initial data: %w", err)
	}

	if err := json.Unmarshal(data, &instance.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return instance, nil
}

func scanAction(row rowScanner) (*models.Action, error) {
	action := &models.Action{}

	var (
		previousID, parentID, userID, groupID sql.NullString
		pausedUntil, claimedAt, finished      sql.NullTime
		permissions, result                   []byte
	)

	err := row.Scan(
		&action.ID,
		&action.InstanceID,
		&action.PluginPtr,
		&action.State,
		&previousID,
		&parentID,
		&pausedUntil,
		&action.Locked,
		&claimedAt,
		&action.RequiresInteraction,
		&userID,
		&groupID,
		&permissions,
		&action.CreatedAt,
		&finished,
		&action.Message,
		&result,
	)
	if err != nil {
		return nil, err
	}

	if previousID.Valid {
		action.PreviousID = &previousID.String
	}

	if parentID.Valid {
		action.ParentID = &parentID.String
	}

	if userID.Valid {
		action.InteractionUserID = &userID.String
	}

	if groupID.Valid {
		action.InteractionGroupID = &groupID.String
	}

	if pausedUntil.Valid {
		t := pausedUntil.Time
		action.PausedUntil = &t
	}

	if claimedAt.Valid {
		t := claimedAt.Time
		action.ClaimedAt = &t
	}

	if finished.Valid {
		t := finished.Time
		action.Finished = &t
	}

	if err := json.Unmarshal(permissions, &action.InteractionPermissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal interaction permissions: %w", err)
	}

	if err := json.Unmarshal(result, &action.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action result: %w", err)
	}

	return action, nil
}
