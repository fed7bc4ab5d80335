package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/steps"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type APIHandlers struct {
	store     persistence.Persistence
	launcher  *engine.Launcher
	runner    *engine.Runner
	registry  *registry.Registry
	stepSet   *steps.Set
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	store persistence.Persistence,
	launcher *engine.Launcher,
	runner *engine.Runner,
	reg *registry.Registry,
	validate *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		store:     store,
		launcher:  launcher,
		runner:    runner,
		registry:  reg,
		stepSet:   steps.NewSet(),
		validator: validate,
		logger:    logger.With("module", "web"),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK

	err := h.store.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetAutomations(c fiber.Ctx) error {
	automations, err := h.store.Automations(c.Context())
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(automations)
}

func (h *APIHandlers) GetAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	automation, err := h.store.AutomationByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(automation)
}

func (h *APIHandlers) CreateAutomation(c fiber.Ctx) error {
	var req CreateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	automation := &models.Automation{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Active:    req.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.SaveAutomation(c.Context(), automation); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(automation)
}

func (h *APIHandlers) UpdateAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	var req UpdateAutomationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.store.AutomationByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Active != nil {
		existing.Active = *req.Active
	}

	existing.UpdatedAt = time.Now().UTC()

	if err := h.store.SaveAutomation(c.Context(), existing); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteAutomation(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	if err := h.store.DeleteAutomation(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetContents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Automation ID is required")
	}

	contents, err := h.store.ContentsByAutomation(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(contents)
}

func (h *APIHandlers) GetTriggers(c fiber.Ctx) error {
	contentID := c.Params("contentId")
	if contentID == "" {
		return badRequest(c, "Content ID is required")
	}

	triggers, err := h.store.TriggersByContent(c.Context(), contentID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(triggers)
}

func (h *APIHandlers) CreateTrigger(c fiber.Ctx) error {
	contentID := c.Params("contentId")
	if contentID == "" {
		return badRequest(c, "Content ID is required")
	}

	var req CreateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition := h.registry.Trigger(req.Type)
	if definition == nil {
		return badRequest(c, "Unknown trigger type: "+req.Type)
	}

	if definition.ValidateConfig != nil {
		if err := definition.ValidateConfig(req.Config); err != nil {
			return badRequest(c, err.Error())
		}
	}

	if _, err := h.store.ContentByID(c.Context(), contentID); err != nil {
		return handleStoreError(c, err)
	}

	trigger := &models.Trigger{
		ID:        uuid.New().String(),
		ContentID: contentID,
		Slot:      req.Slot,
		Type:      req.Type,
		Config:    req.Config,
		Position:  req.Position,
	}

	if err := h.store.SaveTrigger(c.Context(), trigger); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(trigger)
}

func (h *APIHandlers) GetTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	trigger, err := h.store.TriggerByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(trigger)
}

func (h *APIHandlers) UpdateTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	var req UpdateTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	existing, err := h.store.TriggerByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	if req.Type != nil && *req.Type != existing.Type {
		definition := h.registry.Trigger(*req.Type)
		if definition == nil {
			return badRequest(c, "Unknown trigger type: "+*req.Type)
		}

		// A type change invalidates the stored settings.
		existing.Type = *req.Type
		existing.Config = map[string]any{}
	}

	if req.Config != nil {
		existing.Config = req.Config
	}

	if req.Slot != nil {
		existing.Slot = *req.Slot
	}

	if req.Position != nil {
		existing.Position = *req.Position
	}

	definition := h.registry.Trigger(existing.Type)
	if definition != nil && definition.ValidateConfig != nil {
		if err := definition.ValidateConfig(existing.Config); err != nil {
			return badRequest(c, err.Error())
		}
	}

	if err := h.store.SaveTrigger(c.Context(), existing); err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(existing)
}

func (h *APIHandlers) DeleteTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	if err := h.store.DeleteTrigger(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// LaunchTrigger starts a run for a trigger. The payload is validated against
// the trigger definition's data schema before the run is created.
func (h *APIHandlers) LaunchTrigger(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Trigger ID is required")
	}

	var req LaunchRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	trigger, err := h.store.TriggerByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	start := true
	if req.Start != nil {
		start = *req.Start
	}

	instance, err := h.launcher.Launch(c.Context(), trigger, req.Data, engine.LaunchOptions{
		Start:   start,
		Testing: req.Testing,
	})
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	contentID := c.Params("contentId")
	if contentID == "" {
		return badRequest(c, "Content ID is required")
	}

	instances, err := h.store.InstancesByContent(c.Context(), contentID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(instances)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	instance, err := h.store.InstanceByID(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstanceActions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	if _, err := h.store.InstanceByID(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	actions, err := h.store.ActionsByInstance(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(actions)
}

// StepInstanceAction executes exactly one action of an instance. Successors
// are persisted but not enqueued, so dormant and testing runs can be walked
// one step at a time from the editor.
func (h *APIHandlers) StepInstanceAction(c fiber.Ctx) error {
	instanceID := c.Params("id")
	actionID := c.Params("actionId")

	if instanceID == "" || actionID == "" {
		return badRequest(c, "Instance ID and action ID are required")
	}

	action, err := h.store.ActionByID(c.Context(), actionID)
	if err != nil {
		return handleStoreError(c, err)
	}

	if action.InstanceID != instanceID {
		return notFound(c, "action not found in instance")
	}

	result, err := h.runner.Run(c.Context(), actionID, nil, true)
	if err != nil {
		// A step failure is recorded on the action, not raised.
		stepped, loadErr := h.store.ActionByID(c.Context(), actionID)
		if loadErr == nil && stepped.State == models.ActionStateFailed {
			return c.JSON(stepped)
		}

		return internalError(c, err)
	}

	if result.Instance == nil {
		return conflict(c, "action is not claimable: already running, finished, or paused")
	}

	stepped, err := h.store.ActionByID(c.Context(), actionID)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(stepped)
}

// GetContentMessages returns the configuration advisories of a content's step
// trees, keyed by node id. These are editor warnings, not failures.
func (h *APIHandlers) GetContentMessages(c fiber.Ctx) error {
	contentID := c.Params("contentId")
	if contentID == "" {
		return badRequest(c, "Content ID is required")
	}

	if _, err := h.store.ContentByID(c.Context(), contentID); err != nil {
		return handleStoreError(c, err)
	}

	records, err := h.store.StepsByContent(c.Context(), contentID)
	if err != nil {
		return handleStoreError(c, err)
	}

	messages := h.stepSet.Messages(graph.Build(records))

	return c.JSON(messages)
}

// GetTasks returns open actions awaiting human interaction, optionally
// filtered by assigned user or group.
func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	userID := c.Query("user_id")
	groupID := c.Query("group_id")

	actions, err := h.store.OpenInteractionActions(c.Context(), userID, groupID)
	if err != nil {
		return handleStoreError(c, err)
	}

	tasks := make([]TaskResponse, 0, len(actions))
	for _, action := range actions {
		tasks = append(tasks, TaskResponse{
			Action:   action,
			AgeHours: action.HoursSinceCreated(),
		})
	}

	return c.JSON(tasks)
}

func (h *APIHandlers) GetTriggerDefinitions(c fiber.Ctx) error {
	return c.JSON(h.registry.Triggers())
}

func (h *APIHandlers) GetServices(c fiber.Ctx) error {
	return c.JSON(h.registry.Services())
}

func (h *APIHandlers) GetAPIKeys(c fiber.Ctx) error {
	service := c.Query("service")
	if service == "" {
		return badRequest(c, "service query parameter is required")
	}

	keys, err := h.store.APIKeysByService(c.Context(), service)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(keys)
}

func (h *APIHandlers) CreateAPIKey(c fiber.Ctx) error {
	var req CreateAPIKeyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if _, ok := h.registry.Service(req.Service); !ok {
		return badRequest(c, "Unknown service: "+req.Service)
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Service:     req.Service,
		Key:         req.Key,
		Description: req.Description,
		Active:      req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.SaveAPIKey(c.Context(), key); err != nil {
		return handleStoreError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(key)
}
