package httprequest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNewActionDefaults(t *testing.T) {
	action, err := NewAction(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, action.Method)
	assert.Equal(t, 30*time.Second, action.Timeout)
	assert.Equal(t, 1, action.Retry.Attempts)
}

func TestNewActionRequiresURL(t *testing.T) {
	_, err := NewAction(map[string]any{})
	assert.ErrorIs(t, err, ErrURLMissing)
}

func TestExecuteTemplatesURLBodyAndHeaders(t *testing.T) {
	var gotPath, gotBody, gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotHeader = r.Header.Get("X-User")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":     server.URL + "/users/{{ user.id }}",
		"method":  "post",
		"body":    `{"name":"{{ user.name }}"}`,
		"headers": map[string]any{"X-User": "{{ user.id }}"},
	})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), models.ActionContext{
		Data: map[string]any{"user": map[string]any{"id": "42", "name": "Ada"}},
	}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "/users/42", gotPath)
	assert.Equal(t, `{"name":"Ada"}`, gotBody)
	assert.Equal(t, "42", gotHeader)

	assert.Equal(t, http.StatusOK, output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, output["body"])
}

func TestExecuteNonJSONBodyIsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{"url": server.URL})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), models.ActionContext{}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, "plain text", output["body"])
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": float64(3)},
	})
	require.NoError(t, err)

	output, err := action.Execute(context.Background(), models.ActionContext{}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, http.StatusOK, output["status_code"])
}

func TestExecuteLastAttemptReturnsServerResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": float64(2)},
	})
	require.NoError(t, err)

	// The final 5xx is reported as the response, not an error; the step's
	// consumer decides what a bad status means.
	output, err := action.Execute(context.Background(), models.ActionContext{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, output["status_code"])
}

func TestExecuteTransportFailure(t *testing.T) {
	action, err := NewAction(map[string]any{"url": "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), models.ActionContext{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retry attempts failed")
}
