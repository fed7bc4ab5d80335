// Package postgresql provides PostgreSQL persistence implementation for
// automations, triggers, step trees and execution state.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	definitionRepo *DefinitionRepository
	runRepo        *RunRepository
	apiKeyRepo     *APIKeyRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
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
		db:             database,
		logger:         logger,
		definitionRepo: NewDefinitionRepository(database, logger),
		runRepo:        NewRunRepository(database, logger),
		apiKeyRepo:     NewAPIKeyRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Automations(ctx context.Context) ([]*models.Automation, error) {
	return p.definitionRepo.Automations(ctx)
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	return p.definitionRepo.AutomationByID(ctx, id)
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	return p.definitionRepo.SaveAutomation(ctx, automation)
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	return p.definitionRepo.DeleteAutomation(ctx, id)
}

func (p *Persistence) ContentByID(ctx context.Context, id string) (*models.AutomationContent, error) {
	return p.definitionRepo.ContentByID(ctx, id)
}

func (p *Persistence) ContentsByAutomation(ctx context.Context, automationID string) ([]*models.AutomationContent, error) {
	return p.definitionRepo.ContentsByAutomation(ctx, automationID)
}

func (p *Persistence) SaveContent(ctx context.Context, content *models.AutomationContent) error {
	return p.definitionRepo.SaveContent(ctx, content)
}

func (p *Persistence) StepsByContent(ctx context.Context, contentID string) ([]*models.StepRecord, error) {
	return p.definitionRepo.StepsByContent(ctx, contentID)
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.StepRecord) error {
	return p.definitionRepo.SaveStep(ctx, step)
}

func (p *Persistence) DeleteStep(ctx context.Context, id string) error {
	return p.definitionRepo.DeleteStep(ctx, id)
}

func (p *Persistence) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	return p.definitionRepo.TriggerByID(ctx, id)
}

func (p *Persistence) TriggersByContent(ctx context.Context, contentID string) ([]*models.Trigger, error) {
	return p.definitionRepo.TriggersByContent(ctx, contentID)
}

func (p *Persistence) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	return p.definitionRepo.SaveTrigger(ctx, trigger)
}

func (p *Persistence) DeleteTrigger(ctx context.Context, id string) error {
	return p.definitionRepo.DeleteTrigger(ctx, id)
}

func (p *Persistence) CreateRun(ctx context.Context, instance *models.Instance, action *models.Action) error {
	return p.runRepo.CreateRun(ctx, instance, action)
}

func (p *Persistence) InstanceByID(ctx context.Context, id string) (*models.Instance, error) {
	return p.runRepo.InstanceByID(ctx, id)
}

func (p *Persistence) InstancesByContent(ctx context.Context, contentID string) ([]*models.Instance, error) {
	return p.runRepo.InstancesByContent(ctx, contentID)
}

func (p *Persistence) SaveInstance(ctx context.Context, instance *models.Instance) error {
	return p.runRepo.SaveInstance(ctx, instance)
}

func (p *Persistence) ActionByID(ctx context.Context, id string) (*models.Action, error) {
	return p.runRepo.ActionByID(ctx, id)
}

func (p *Persistence) ActionsByInstance(ctx context.Context, instanceID string) ([]*models.Action, error) {
	return p.runRepo.ActionsByInstance(ctx, instanceID)
}

func (p *Persistence) ChildActions(ctx context.Context, parentID string) ([]*models.Action, error) {
	return p.runRepo.ChildActions(ctx, parentID)
}

func (p *Persistence) HasSuccessor(ctx context.Context, actionID string) (bool, error) {
	return p.runRepo.HasSuccessor(ctx, actionID)
}

func (p *Persistence) CreateAction(ctx context.Context, action *models.Action) error {
	return p.runRepo.CreateAction(ctx, action)
}

func (p *Persistence) SaveAction(ctx context.Context, action *models.Action) error {
	return p.runRepo.SaveAction(ctx, action)
}

func (p *Persistence) ClaimAction(ctx context.Context, actionID, pluginPtr string) (*models.Action, bool, error) {
	return p.runRepo.ClaimAction(ctx, actionID, pluginPtr)
}

func (p *Persistence) DueActions(ctx context.Context, now time.Time) ([]*models.Action, error) {
	return p.runRepo.DueActions(ctx, now)
}

func (p *Persistence) OpenInteractionActions(ctx context.Context, userID, groupID string) ([]*models.Action, error) {
	return p.runRepo.OpenInteractionActions(ctx, userID, groupID)
}

func (p *Persistence) DeleteFinishedInstancesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return p.runRepo.DeleteFinishedInstancesBefore(ctx, cutoff)
}

func (p *Persistence) APIKeysByService(ctx context.Context, service string) ([]*models.APIKey, error) {
	return p.apiKeyRepo.ByService(ctx, service)
}

func (p *Persistence) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	return p.apiKeyRepo.Save(ctx, key)
}
