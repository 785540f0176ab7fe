package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshal(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"queued", Queued("dig", 1), `{"event":"queued","action":"dig","queue_length":1}`},
		{"ack", Ack("move", "Moving to 1, 2, 3"), `{"event":"ack","action":"move","message":"Moving to 1, 2, 3"}`},
		{"ack without message", Ack("jump", ""), `{"event":"ack","action":"jump"}`},
		{"error with code", ErrorEvent("dig", "boom", ErrCodeFailed), `{"event":"error","action":"dig","message":"boom","code":"FAILED"}`},
		{"error without action", ErrorEvent("", "Failed to reconnect after 10 attempts", ""), `{"event":"error","message":"Failed to reconnect after 10 attempts"}`},
		{"nil fields", NewEvent(EventDeath, nil), `{"event":"death"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestEventFieldCannotOverrideName(t *testing.T) {
	ev := NewEvent("chat", map[string]any{"event": "spoofed", "message": "x"})
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat","message":"x"}`, string(data))
}

func TestEventWithCopies(t *testing.T) {
	base := Ack("dig", "ok")
	next := base.With("block", "stone")
	assert.Nil(t, base.Get("block"))
	assert.Equal(t, "stone", next.Get("block"))
	assert.Equal(t, []string{"action", "block", "message"}, next.Keys())
}

func TestEventUnmarshal(t *testing.T) {
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"event":"reconnecting","attempt":2,"backoff_ms":2000}`), &ev))
	assert.Equal(t, EventReconnecting, ev.Name)
	assert.Equal(t, float64(2), ev.Get("attempt"))
	assert.NotContains(t, ev.Fields, "event")
}
