package types

import (
	"encoding/json"
	"fmt"
)

// EntityKind tags a SyncMessage's payload: the
// {"type": "Task"|"Stage"|"Pipeline", "object": <dict>} wire shape.
type EntityKind string

const (
	EntityTask     EntityKind = "Task"
	EntityStage    EntityKind = "Stage"
	EntityPipeline EntityKind = "Pipeline"
)

// SyncMessage is a state-change proposal published to sync-to-master. It
// is the Go rendition of the dynamically-dispatched {type, object} payload
// as a tagged variant (design note "Dynamic-dispatched state payloads"):
// exactly one of Task/Stage/Pipeline is set, selected by Kind.
type SyncMessage struct {
	Kind     EntityKind
	Task     *TaskDTO
	Stage    *StageDTO
	Pipeline *PipelineDTO
}

type wireSyncMessage struct {
	Type   EntityKind      `json:"type"`
	Object json.RawMessage `json:"object"`
}

// MarshalJSON renders the tagged variant as the flat {type, object}
// wire shape.
func (m SyncMessage) MarshalJSON() ([]byte, error) {
	var obj interface{}
	switch m.Kind {
	case EntityTask:
		obj = m.Task
	case EntityStage:
		obj = m.Stage
	case EntityPipeline:
		obj = m.Pipeline
	default:
		return nil, fmt.Errorf("sync message: unknown kind %q", m.Kind)
	}
	object, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireSyncMessage{Type: m.Kind, Object: object})
}

// UnmarshalJSON parses the flat {type, object} shape back into the tagged
// variant, returning a ValueError for an unrecognized type.
func (m *SyncMessage) UnmarshalJSON(data []byte) error {
	var w wireSyncMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Kind = w.Type
	switch w.Type {
	case EntityTask:
		var t TaskDTO
		if err := json.Unmarshal(w.Object, &t); err != nil {
			return err
		}
		m.Task = &t
	case EntityStage:
		var s StageDTO
		if err := json.Unmarshal(w.Object, &s); err != nil {
			return err
		}
		m.Stage = &s
	case EntityPipeline:
		var p PipelineDTO
		if err := json.Unmarshal(w.Object, &p); err != nil {
			return err
		}
		m.Pipeline = &p
	default:
		return &ValueError{Field: "type", Value: string(w.Type), Allowed: []string{"Task", "Stage", "Pipeline"}}
	}
	return nil
}

// UID returns the entity id the message targets, used to build the
// `<uid>-ack` body the synchronizer replies with.
func (m SyncMessage) UID() string {
	switch m.Kind {
	case EntityTask:
		return m.Task.ID
	case EntityStage:
		return m.Stage.ID
	case EntityPipeline:
		return m.Pipeline.ID
	}
	return ""
}
