package websocket

import (
	"context"
	"encoding/json"
	"time"
)

// Event types published by the domain services.
const (
	EventIntakeReceived  = "intake_received"
	EventFactAdded       = "fact_added"
	EventPromptUpdate    = "prompt_update"
	EventTaskUpdate      = "task_update"
	EventProcedureUpdate = "procedure_update"
)

// Event is one realtime notification pushed to board subscribers.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// EventPublisher is what domain services publish through. The Hub satisfies
// it; tests substitute capture fakes.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// CaseTopic scopes events to a single surgical case.
func CaseTopic(caseID string) string {
	return "case:" + caseID
}

// MRNTopic scopes events to one patient's record number, so a coordinator
// watching a patient sees intake and task activity before a case exists.
func MRNTopic(mrn string) string {
	return "mrn:" + mrn
}

// NewEvent builds an Event stamped with the current time. A non-nil payload
// is JSON-encoded into Data; payloads that fail to encode are dropped.
func NewEvent(eventType, topic, resource, resourceID string, payload any) Event {
	ev := Event{
		Type:       eventType,
		Topic:      topic,
		Resource:   resource,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Data = data
		}
	}
	return ev
}
