package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/transport"
)

func TestEmitter_WritesInOrderAndPublishes(t *testing.T) {
	var out bytes.Buffer
	bus := NewBus(10, nil)
	defer bus.Close()
	c := &collector{}
	bus.Subscribe(AllEvents, c.add)

	em := NewEmitter(transport.NewEncoder(&out), bus, nil, zaptest.NewLogger(t))
	em.Emit(model.Queued("dig", 1))
	em.Emit(model.NewEvent("dig_done", map[string]any{"block": "stone"}))
	em.RecordCommand(model.Command{Kind: "dig"})

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"event":"queued","action":"dig","queue_length":1}`, lines[0])
	assert.JSONEq(t, `{"event":"dig_done","block":"stone"}`, lines[1])
	waitFor(t, func() bool { return c.len() == 2 })
}

func readTranscript(t *testing.T, path string) []TranscriptEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var entries []TranscriptEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e TranscriptEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transcript.jsonl")
	tr, err := OpenTranscript(path, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	em := NewEmitter(transport.NewEncoder(&out), nil, tr, zaptest.NewLogger(t))
	em.RecordCommand(model.Command{ID: "cmd_1", Kind: "chat", Params: map[string]any{"message": "hi"}})
	em.Emit(model.Ack("chat", ""))
	require.NoError(t, tr.Close())

	entries := readTranscript(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, DirectionIn, entries[0].Direction)
	assert.Equal(t, "chat", entries[0].Name)
	assert.Equal(t, "cmd_1", entries[0].CommandID)
	assert.Equal(t, DirectionOut, entries[1].Direction)
	assert.Equal(t, model.EventAck, entries[1].Name)

	assert.ErrorIs(t, tr.RecordEvent(model.Ack("x", "")), os.ErrClosed)
}

func TestTranscript_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	tr, err := OpenTranscript(path, 200)
	require.NoError(t, err)
	defer tr.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, tr.RecordEvent(model.NewEvent(model.EventChat, map[string]any{"message": strings.Repeat("x", 50)})))
	}
	archived, err := os.ReadDir(filepath.Join(dir, "archive"))
	require.NoError(t, err)
	assert.NotEmpty(t, archived)
	assert.LessOrEqual(t, tr.Size(), int64(200))
}
