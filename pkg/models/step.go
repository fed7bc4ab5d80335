package models

// StepKind discriminates the node kinds of a step tree.
type StepKind string

const (
	StepKindTrigger     StepKind = "trigger"       // anchor node, no-op execution
	StepKindConditional StepKind = "conditional"   // evaluates a condition, routes to a branch
	StepKindBranchYes   StepKind = "branch:yes"    // "yes" branch marker under a conditional
	StepKindBranchNo    StepKind = "branch:no"     // "no" branch marker under a conditional
	StepKindSplit       StepKind = "split"         // parallel fan-out, joins when all paths finish
	StepKindPath        StepKind = "path"          // one branch of a split
	StepKindPause       StepKind = "pause"         // suspends the chain until a deadline
	StepKindModifierEnd StepKind = "modifier:end"  // attached to an action, truncates the chain
	StepKindModifierNex StepKind = "modifier:next" // attached to an action, jumps to another trigger
)

// ActionKindPrefix prefixes kinds whose execution is delegated to a registered
// business action, e.g. "action:log" or "action:httprequest".
const ActionKindPrefix = "action:"

// IsActionKind reports whether the kind delegates to a registered action.
func (k StepKind) IsActionKind() bool {
	return len(k) > len(ActionKindPrefix) && string(k[:len(ActionKindPrefix)]) == ActionKindPrefix
}

// ActionType returns the registered action type for an action kind, e.g.
// "log" for "action:log". Empty for non-action kinds.
func (k StepKind) ActionType() string {
	if !k.IsActionKind() {
		return ""
	}

	return string(k[len(ActionKindPrefix):])
}

// IsModifier reports whether the kind attaches to an action node and alters
// its successor computation instead of running as a step itself.
func (k StepKind) IsModifier() bool {
	return k == StepKindModifierEnd || k == StepKindModifierNex
}

// StepRecord is the stored form of one node in a content's step tree, as the
// surrounding placeholder system persists it: a flat row with parent and
// position. The graph package reassembles records into a linked tree.
//
// ID is stable and unique within the content; actions address their node
// through it, independent of tree position.
type StepRecord struct {
	ID        string         `json:"id"         validate:"required"`
	ContentID string         `json:"content_id" validate:"required"`
	Slot      string         `json:"slot"       validate:"required"`
	ParentID  *string        `json:"parent_id,omitempty"`
	Position  int            `json:"position"`
	Kind      StepKind       `json:"kind"       validate:"required"`
	Config    map[string]any `json:"config,omitempty"`
	Comment   string         `json:"comment,omitempty"`
}
