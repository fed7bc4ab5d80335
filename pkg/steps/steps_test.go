package steps

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, slot string, parentID *string, position int, kind models.StepKind, config map[string]any) *models.StepRecord {
	return &models.StepRecord{
		ID:        id,
		ContentID: "content-1",
		Slot:      slot,
		ParentID:  parentID,
		Position:  position,
		Kind:      kind,
		Config:    config,
	}
}

func ptr(s string) *string { return &s }

func testEnv(g *graph.Graph) *Env {
	return &Env{
		Graph:    g,
		Instance: &models.Instance{ID: "instance-1", ContentID: "content-1", Data: map[string]any{}},
		Logger:   slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}

func TestSuccessorNextSibling(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("a", "main", nil, 10, models.StepKindTrigger, nil),
		record("b", "main", nil, 20, models.StepKind("action:log"), nil),
	})

	next := Successor(g, g.ByID("a"))
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)

	assert.Nil(t, Successor(g, g.ByID("b")))
}

func TestSuccessorSkipsModifiers(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("a", "main", nil, 10, models.StepKind("action:log"), nil),
		record("mod", "main", nil, 20, models.StepKindModifierEnd, nil),
		record("b", "main", nil, 30, models.StepKind("action:log"), nil),
	})

	next := Successor(g, g.ByID("a"))
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
}

func TestSuccessorStopsAtPathBoundary(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("split", "main", nil, 10, models.StepKindSplit, nil),
		record("path1", "main", ptr("split"), 10, models.StepKindPath, nil),
		record("inner", "main", ptr("path1"), 10, models.StepKind("action:log"), nil),
		record("after", "main", nil, 20, models.StepKind("action:log"), nil),
	})

	// The chain inside a path ends there; the join resumes "after".
	assert.Nil(t, Successor(g, g.ByID("inner")))

	next := Successor(g, g.ByID("split"))
	require.NotNil(t, next)
	assert.Equal(t, "after", next.ID)
}

func TestSuccessorClimbsOutOfBranch(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional, map[string]any{"condition": "true"}),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes, nil),
		record("no", "main", ptr("cond"), 20, models.StepKindBranchNo, nil),
		record("inner", "main", ptr("yes"), 10, models.StepKind("action:log"), nil),
		record("after", "main", nil, 20, models.StepKind("action:log"), nil),
	})

	// The last step of a branch continues at the conditional's successor.
	next := Successor(g, g.ByID("inner"))
	require.NotNil(t, next)
	assert.Equal(t, "after", next.ID)
}

func TestEvalCondition(t *testing.T) {
	data := map[string]any{
		"score": 10,
		"user":  map[string]any{"role": "admin"},
	}

	tests := []struct {
		condition string
		want      bool
	}{
		{"score > 5", true},
		{"score > 50", false},
		{`user.role == "admin"`, true},
		{"{{ score }} > 5", true},
		{"{{ user.role }}", true},
		{"score", true},
		{"user.role", true},
		{"'yes'", true},
		{"0", false},
		{"true", true},
		{"false", false},
	}

	for _, tt := range tests {
		got, err := EvalCondition(tt.condition, data)
		require.NoError(t, err, tt.condition)
		assert.Equal(t, tt.want, got, tt.condition)
	}
}

func TestEvalConditionInvalidExpression(t *testing.T) {
	_, err := EvalCondition("score >", map[string]any{"score": 1})
	assert.Error(t, err)
}

func TestExecuteConditionalRecordsBranch(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional, map[string]any{"condition": "score > 5"}),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes, nil),
		record("no", "main", ptr("cond"), 20, models.StepKindBranchNo, nil),
	})

	env := testEnv(g)
	env.Instance.Data = map[string]any{"score": 10}

	action := &models.Action{ID: "action-1", InstanceID: "instance-1", PluginPtr: "cond"}

	outcome, err := executeConditional(context.Background(), env, g.ByID("cond"), action)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateCompleted, outcome.State)
	assert.Equal(t, true, outcome.Output["condition"])
	assert.Equal(t, "branch:yes", outcome.Output["branch"])
}

func TestExecuteConditionalMissingBranch(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional, map[string]any{"condition": "false"}),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes, nil),
	})

	env := testEnv(g)
	action := &models.Action{ID: "action-1", InstanceID: "instance-1", PluginPtr: "cond"}

	_, err := executeConditional(context.Background(), env, g.ByID("cond"), action)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestNextConditionalEmptyBranchFallsThrough(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional, map[string]any{"condition": "true"}),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes, nil),
		record("no", "main", ptr("cond"), 20, models.StepKindBranchNo, nil),
		record("after", "main", nil, 20, models.StepKind("action:log"), nil),
	})

	env := testEnv(g)
	action := &models.Action{
		ID:         "action-1",
		InstanceID: "instance-1",
		PluginPtr:  "cond",
		Result:     map[string]any{"condition": true},
	}

	next, err := nextConditional(context.Background(), env, g.ByID("cond"), action)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "after", next[0].PluginPtr)
	assert.Equal(t, "action-1", *next[0].PreviousID)
}

func TestExecutePauseSetsDeadlineThenCompletes(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("pause", "main", nil, 10, models.StepKindPause, map[string]any{"duration": "30m"}),
	})

	env := testEnv(g)
	action := &models.Action{ID: "action-1", InstanceID: "instance-1", PluginPtr: "pause"}

	outcome, err := executePause(context.Background(), env, g.ByID("pause"), action)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateWaiting, outcome.State)
	require.NotNil(t, outcome.PausedUntil)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), *outcome.PausedUntil, 5*time.Second)

	// Deadline in the past: the pause completes.
	past := time.Now().UTC().Add(-time.Minute)
	action.PausedUntil = &past

	outcome, err = executePause(context.Background(), env, g.ByID("pause"), action)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateCompleted, outcome.State)
}

func TestPauseDurationNumericSeconds(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("pause", "main", nil, 10, models.StepKindPause, map[string]any{"duration": float64(90)}),
	})

	duration, err := pauseDuration(g.ByID("pause"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, duration)
}

func TestPauseDurationInvalid(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("pause", "main", nil, 10, models.StepKindPause, map[string]any{"duration": "soon"}),
	})

	_, err := pauseDuration(g.ByID("pause"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMisconfigured)
}

func TestMessagesFlagsConfigurationProblems(t *testing.T) {
	g := graph.Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional, map[string]any{"condition": "true"}),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes, nil),
		record("split", "main", nil, 20, models.StepKindSplit, nil),
		record("path1", "main", ptr("split"), 10, models.StepKindPath, nil),
		record("act", "main", nil, 30, models.StepKind("action:log"), nil),
		record("next", "main", ptr("act"), 10, models.StepKindModifierNex, map[string]any{}),
	})

	problems := NewSet().Messages(g)

	require.Contains(t, problems, "cond")
	assert.Contains(t, problems["cond"], "conditional has no branch:no branch")

	require.Contains(t, problems, "split")
	assert.Contains(t, problems["split"], "split has no path with steps")

	require.Contains(t, problems, "act")
	assert.Contains(t, problems["act"], "next-modifier has no trigger_id configured")
}

func TestResolveRejectsStructuralKinds(t *testing.T) {
	set := NewSet()

	for _, kind := range []models.StepKind{
		models.StepKindPath,
		models.StepKindBranchYes,
		models.StepKindModifierEnd,
	} {
		_, err := set.Resolve(kind)
		assert.Error(t, err, string(kind))
	}

	_, err := set.Resolve(models.StepKind("action:anything"))
	assert.NoError(t, err)
}
