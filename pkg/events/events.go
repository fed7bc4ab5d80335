// Package events defines the event types the engine publishes and consumes.
//
// ActionActivation is the engine's unit of work: enqueueing one is how a
// pending action gets scheduled for execution. The remaining types are
// lifecycle notifications for observers. Delivery is at-least-once; the
// scheduler's claim guard absorbs duplicates.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all engine events.
const Topic = "chainpress.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ActionActivationEvent EventType = "action.activation"
	ActionFailedEvent     EventType = "action.failed"

	InstanceLaunchedEvent EventType = "instance.launched"
	InstanceFinishedEvent EventType = "instance.finished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	InstanceID string         `json:"instance_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		InstanceID: instanceID,
	}
}

// ActionActivation schedules one execution unit for the given action. Data is
// the predecessor's output, carried as the successor's input.
type ActionActivation struct {
	BaseEvent

	ActionID   string         `json:"action_id"`
	Data       map[string]any `json:"data,omitempty"`
	SingleStep bool           `json:"single_step,omitempty"`
}

func (a ActionActivation) GetType() EventType {
	return ActionActivationEvent
}

// ActionFailed reports a step whose execution raised; terminal for its branch.
type ActionFailed struct {
	BaseEvent

	ActionID string `json:"action_id"`
	Error    string `json:"error"`
}

func (a ActionFailed) GetType() EventType {
	return ActionFailedEvent
}

// InstanceLaunched reports a trigger converting an external event into a run.
type InstanceLaunched struct {
	BaseEvent

	TriggerID string         `json:"trigger_id"`
	Data      map[string]any `json:"data,omitempty"`
}

func (i InstanceLaunched) GetType() EventType {
	return InstanceLaunchedEvent
}

// InstanceFinished reports a run whose actions all reached a terminal state.
type InstanceFinished struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (i InstanceFinished) GetType() EventType {
	return InstanceFinishedEvent
}
