package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence/memory"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type nopBus struct{}

func (nopBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	return nil
}

type testAPI struct {
	app   *fiber.App
	store *memory.Persistence
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewPersistence()

	reg := registry.NewRegistry(logger)
	registry.RegisterBuiltinTriggers(reg)
	registry.RegisterBuiltinServices(reg)

	tracer := noop.NewTracerProvider().Tracer("test")
	launcher := engine.NewLauncher(store, reg, nopBus{}, logger, tracer)
	runner := engine.NewRunner(store, reg, launcher.LaunchByTriggerID, logger, tracer)

	handlers := NewAPIHandlers(store, launcher, runner, reg, validator.New(validator.WithRequiredStructEnabled()), logger)

	app := fiber.New()

	am := app.Group("/automations")
	am.Get("/", handlers.GetAutomations)
	am.Post("/", handlers.CreateAutomation)
	am.Get("/:id", handlers.GetAutomation)
	am.Patch("/:id", handlers.UpdateAutomation)
	am.Delete("/:id", handlers.DeleteAutomation)
	am.Get("/:id/contents", handlers.GetContents)

	ct := app.Group("/contents")
	ct.Get("/:contentId/triggers", handlers.GetTriggers)
	ct.Post("/:contentId/triggers", handlers.CreateTrigger)
	ct.Get("/:contentId/instances", handlers.GetInstances)
	ct.Get("/:contentId/messages", handlers.GetContentMessages)

	tr := app.Group("/triggers")
	tr.Get("/:id", handlers.GetTrigger)
	tr.Patch("/:id", handlers.UpdateTrigger)
	tr.Delete("/:id", handlers.DeleteTrigger)
	tr.Post("/:id/launch", handlers.LaunchTrigger)

	in := app.Group("/instances")
	in.Get("/:id", handlers.GetInstance)
	in.Get("/:id/actions", handlers.GetInstanceActions)
	in.Post("/:id/actions/:actionId/step", handlers.StepInstanceAction)

	app.Get("/tasks", handlers.GetTasks)
	app.Get("/trigger-definitions", handlers.GetTriggerDefinitions)
	app.Get("/services", handlers.GetServices)

	ak := app.Group("/api-keys")
	ak.Get("/", handlers.GetAPIKeys)
	ak.Post("/", handlers.CreateAPIKey)

	app.Get("/health", handlers.HealthCheck)

	return &testAPI{app: app, store: store}
}

func (a *testAPI) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

// seedContent installs an active automation with one content and a code
// trigger on the main slot, plus a single trigger step.
func (a *testAPI) seedContent(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, a.store.SaveAutomation(ctx, &models.Automation{
		ID: "automation-1", Name: "Test automation", Active: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, a.store.SaveContent(ctx, &models.AutomationContent{
		ID: "content-1", AutomationID: "automation-1",
	}))
	require.NoError(t, a.store.SaveTrigger(ctx, &models.Trigger{
		ID: "trigger-1", ContentID: "content-1", Slot: "main", Type: "code",
	}))
	require.NoError(t, a.store.SaveStep(ctx, &models.StepRecord{
		ID: "start", ContentID: "content-1", Slot: "main", Position: 10,
		Kind: models.StepKindTrigger,
	}))
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestAutomationLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/automations/", CreateAutomationRequest{
		Name: "My automation", Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Automation](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "My automation", created.Name)

	resp = api.request(t, http.MethodGet, "/automations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	newName := "Renamed"
	resp = api.request(t, http.MethodPatch, "/automations/"+created.ID, UpdateAutomationRequest{Name: &newName})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.Automation](t, resp)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.Active)

	resp = api.request(t, http.MethodDelete, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/automations/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAutomationValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/automations/", CreateAutomationRequest{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTrigger(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	resp := api.request(t, http.MethodPost, "/contents/content-1/triggers", CreateTriggerRequest{
		Slot: "main", Type: "timer", Config: map[string]any{"cron": "*/5 * * * *"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Trigger](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "content-1", created.ContentID)
}

func TestCreateTriggerRejectsUnknownTypeAndBadConfig(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	resp := api.request(t, http.MethodPost, "/contents/content-1/triggers", CreateTriggerRequest{
		Slot: "main", Type: "nope",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/contents/content-1/triggers", CreateTriggerRequest{
		Slot: "main", Type: "timer", Config: map[string]any{"cron": "bad"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateTriggerMissingContent(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/contents/ghost/triggers", CreateTriggerRequest{
		Slot: "main", Type: "code",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTriggerTypeChangeResetsConfig(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	ctx := context.Background()
	require.NoError(t, api.store.SaveTrigger(ctx, &models.Trigger{
		ID: "trigger-2", ContentID: "content-1", Slot: "main", Type: "timer",
		Config: map[string]any{"cron": "*/5 * * * *"},
	}))

	newType := "click"
	resp := api.request(t, http.MethodPatch, "/triggers/trigger-2", UpdateTriggerRequest{Type: &newType})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[models.Trigger](t, resp)
	assert.Equal(t, "click", updated.Type)
	assert.Empty(t, updated.Config)
}

func TestLaunchTriggerCreatesInstance(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	resp := api.request(t, http.MethodPost, "/triggers/trigger-1/launch", LaunchRequest{
		Data: map[string]any{"init": true},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	instance := decode[models.Instance](t, resp)
	assert.Equal(t, "content-1", instance.ContentID)
	assert.NotEmpty(t, instance.Key)

	resp = api.request(t, http.MethodGet, "/instances/"+instance.ID+"/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	actions := decode[[]models.Action](t, resp)
	require.Len(t, actions, 1)
	assert.Equal(t, "start", actions[0].PluginPtr)
}

func TestStepInstanceAction(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	resp := api.request(t, http.MethodPost, "/triggers/trigger-1/launch", LaunchRequest{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	instance := decode[models.Instance](t, resp)

	resp = api.request(t, http.MethodGet, "/instances/"+instance.ID+"/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	actions := decode[[]models.Action](t, resp)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionStatePending, actions[0].State)

	resp = api.request(t, http.MethodPost, "/instances/"+instance.ID+"/actions/"+actions[0].ID+"/step", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stepped := decode[models.Action](t, resp)
	assert.Equal(t, models.ActionStateCompleted, stepped.State)
	assert.NotNil(t, stepped.Finished)

	resp = api.request(t, http.MethodPost, "/instances/"+instance.ID+"/actions/"+actions[0].ID+"/step", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = api.request(t, http.MethodPost, "/instances/other/actions/"+actions[0].ID+"/step", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLaunchTriggerInvalidPayload(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	ctx := context.Background()
	require.NoError(t, api.store.SaveTrigger(ctx, &models.Trigger{
		ID: "trigger-click", ContentID: "content-1", Slot: "main", Type: "click",
	}))

	resp := api.request(t, http.MethodPost, "/triggers/trigger-click/launch", LaunchRequest{
		Data: map[string]any{"element_id": "b1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLaunchUnknownTrigger(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/triggers/ghost/launch", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentMessagesReportsProblems(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	ctx := context.Background()
	require.NoError(t, api.store.SaveStep(ctx, &models.StepRecord{
		ID: "cond", ContentID: "content-1", Slot: "main", Position: 20,
		Kind: models.StepKindConditional, Config: map[string]any{"condition": "true"},
	}))

	resp := api.request(t, http.MethodGet, "/contents/content-1/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	messages := decode[map[string][]string](t, resp)
	assert.Contains(t, messages, "cond")
}

func TestGetTasksFiltersByUser(t *testing.T) {
	api := newTestAPI(t)
	api.seedContent(t)

	ctx := context.Background()
	user := "user-1"
	require.NoError(t, api.store.SaveAction(ctx, &models.Action{
		ID: "task-1", InstanceID: "instance-1", PluginPtr: "start",
		State: models.ActionStateWaiting, RequiresInteraction: true,
		InteractionUserID: &user, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, api.store.SaveAction(ctx, &models.Action{
		ID: "task-2", InstanceID: "instance-1", PluginPtr: "start",
		State: models.ActionStateWaiting, RequiresInteraction: true,
		CreatedAt: time.Now().UTC(),
	}))

	resp := api.request(t, http.MethodGet, "/tasks?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tasks := decode[[]TaskResponse](t, resp)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.GreaterOrEqual(t, tasks[0].AgeHours, float64(0))

	resp = api.request(t, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]TaskResponse](t, resp), 2)
}

func TestTriggerDefinitionsAndServices(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/trigger-definitions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]registry.TriggerDefinition](t, resp), 4)

	resp = api.request(t, http.MethodGet, "/services", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]registry.Service](t, resp))
}

func TestAPIKeys(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodPost, "/api-keys/", CreateAPIKeyRequest{
		Name: "slack main", Service: "slack", Key: "xoxb-1", Active: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.APIKey](t, resp)
	assert.NotEmpty(t, created.ID)

	resp = api.request(t, http.MethodPost, "/api-keys/", CreateAPIKeyRequest{
		Name: "nope", Service: "unknown", Key: "k", Active: true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.request(t, http.MethodGet, "/api-keys/?service=slack", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.APIKey](t, resp), 1)

	resp = api.request(t, http.MethodGet, "/api-keys/", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
