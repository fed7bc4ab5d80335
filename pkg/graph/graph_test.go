package graph

import (
	"testing"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, slot string, parentID *string, position int, kind models.StepKind) *models.StepRecord {
	return &models.StepRecord{
		ID:        id,
		ContentID: "content-1",
		Slot:      slot,
		ParentID:  parentID,
		Position:  position,
		Kind:      kind,
	}
}

func ptr(s string) *string { return &s }

func TestBuildLinksSiblingsByPosition(t *testing.T) {
	// Records arrive out of order; positions decide tree order.
	g := Build([]*models.StepRecord{
		record("c", "main", nil, 30, models.StepKindPause),
		record("a", "main", nil, 10, models.StepKindTrigger),
		record("b", "main", nil, 20, models.StepKind("action:log")),
	})

	require.Equal(t, 3, g.Len())

	first := g.First("main")
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)

	second := g.Node(first.NextSibling)
	require.NotNil(t, second)
	assert.Equal(t, "b", second.ID)
	assert.Equal(t, first.Index, second.PrevSibling)

	third := g.Node(second.NextSibling)
	require.NotNil(t, third)
	assert.Equal(t, "c", third.ID)
	assert.Equal(t, None, third.NextSibling)
}

func TestBuildNestedChildren(t *testing.T) {
	g := Build([]*models.StepRecord{
		record("cond", "main", nil, 10, models.StepKindConditional),
		record("yes", "main", ptr("cond"), 10, models.StepKindBranchYes),
		record("no", "main", ptr("cond"), 20, models.StepKindBranchNo),
		record("inner", "main", ptr("yes"), 10, models.StepKind("action:log")),
	})

	cond := g.ByID("cond")
	require.NotNil(t, cond)

	children := g.ChildNodes(cond)
	require.Len(t, children, 2)
	assert.Equal(t, "yes", children[0].ID)
	assert.Equal(t, "no", children[1].ID)

	inner := g.ByID("inner")
	require.NotNil(t, inner)
	assert.Equal(t, g.ByID("yes").Index, inner.Parent)
}

func TestBuildSeparateSlots(t *testing.T) {
	g := Build([]*models.StepRecord{
		record("m1", "main", nil, 10, models.StepKindTrigger),
		record("s1", "side", nil, 10, models.StepKindTrigger),
	})

	require.NotNil(t, g.First("main"))
	require.NotNil(t, g.First("side"))
	assert.Equal(t, "m1", g.First("main").ID)
	assert.Equal(t, "s1", g.First("side").ID)
	assert.Nil(t, g.First("empty"))

	// Nodes in different slots are not siblings.
	assert.Equal(t, None, g.First("main").NextSibling)
}

func TestBuildOrphanBecomesRoot(t *testing.T) {
	g := Build([]*models.StepRecord{
		record("a", "main", nil, 10, models.StepKindTrigger),
		record("lost", "main", ptr("gone"), 20, models.StepKind("action:log")),
	})

	roots := g.Roots("main")
	require.Len(t, roots, 2)
	assert.Equal(t, "lost", roots[1].ID)
}

func TestByIDAndNodeBounds(t *testing.T) {
	g := Build([]*models.StepRecord{
		record("a", "main", nil, 10, models.StepKindTrigger),
	})

	assert.Nil(t, g.ByID("missing"))
	assert.Nil(t, g.Node(-1))
	assert.Nil(t, g.Node(99))
	assert.NotNil(t, g.Node(0))
}
