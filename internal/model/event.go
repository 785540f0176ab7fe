package model

import (
	"encoding/json"
	"sort"
)

// Outbound event names.
const (
	EventAck              = "ack"
	EventQueued           = "queued"
	EventError            = "error"
	EventStopped          = "stopped"
	EventCancelled        = "cancelled"
	EventDigAreaDone      = "dig_area_done"
	EventDigAreaCancelled = "dig_area_cancelled"
	EventReconnecting     = "reconnecting"
	EventSpawn            = "spawn"
	EventChat             = "chat"
	EventWhisper          = "whisper"
	EventPlayerJoined     = "player_joined"
	EventPlayerLeft       = "player_left"
	EventHealth           = "health"
	EventDeath            = "death"
	EventKicked           = "kicked"
	EventDisconnected     = "disconnected"
	EventPosition         = "position"
	EventInventory        = "inventory"
	EventPlayers          = "players"
	EventStatus           = "status"
	EventSurvey           = "survey"
)

// Event is one outbound record. It serializes as a flat object with "event" set to Name.
type Event struct {
	Name   string
	Fields map[string]any
}

func NewEvent(name string, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return Event{Name: name, Fields: fields}
}

func (e Event) With(key string, value any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	return Event{Name: e.Name, Fields: fields}
}

func (e Event) Get(key string) any {
	return e.Fields[key]
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["event"] = e.Name
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, _ := raw["event"].(string)
	delete(raw, "event")
	e.Name = name
	e.Fields = raw
	return nil
}

// Keys lists field names in sorted order.
func (e Event) Keys() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ack acknowledges action; an empty message is left out.
func Ack(action, message string) Event {
	fields := map[string]any{"action": action}
	if message != "" {
		fields["message"] = message
	}
	return NewEvent(EventAck, fields)
}

func Queued(action string, queueLength int) Event {
	return NewEvent(EventQueued, map[string]any{"action": action, "queue_length": queueLength})
}

func ErrorEvent(action, message string, code ErrorCode) Event {
	fields := map[string]any{"message": message}
	if action != "" {
		fields["action"] = action
	}
	if code != "" {
		fields["code"] = string(code)
	}
	return NewEvent(EventError, fields)
}

func Cancelled(message string) Event {
	return NewEvent(EventCancelled, map[string]any{"message": message})
}
