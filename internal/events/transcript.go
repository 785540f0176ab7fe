package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/msageha/craftbridge/internal/model"
)

const (
	DefaultTranscriptMaxBytes = 50 * 1024 * 1024
	archiveDir                = "archive"
)

// Direction of a transcript entry relative to the bridge.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

type TranscriptEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Direction string         `json:"direction"`
	Name      string         `json:"name"`
	CommandID string         `json:"command_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Transcript is an append-only JSONL record of inbound commands and outbound events,
// rotated into archive/ once it grows past maxBytes.
type Transcript struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	rotated  int
}

func OpenTranscript(path string, maxBytes int64) (*Transcript, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultTranscriptMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	t := &Transcript{path: path, maxBytes: maxBytes}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transcript) open() error {
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat transcript: %w", err)
	}
	t.file = f
	t.size = info.Size()
	return nil
}

func (t *Transcript) RecordCommand(cmd model.Command) error {
	return t.write(TranscriptEntry{
		Timestamp: time.Now().UTC(),
		Direction: DirectionIn,
		Name:      cmd.Kind,
		CommandID: cmd.ID,
		Fields:    cmd.Params,
	})
}

func (t *Transcript) RecordEvent(ev model.Event) error {
	return t.write(TranscriptEntry{
		Timestamp: time.Now().UTC(),
		Direction: DirectionOut,
		Name:      ev.Name,
		Fields:    ev.Fields,
	})
}

func (t *Transcript) write(entry TranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return os.ErrClosed
	}
	if t.size > 0 && t.size+int64(len(data)) > t.maxBytes {
		if err := t.rotate(); err != nil {
			return fmt.Errorf("rotate transcript: %w", err)
		}
	}
	n, err := t.file.Write(data)
	t.size += int64(n)
	if err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// rotate must be called with mu held.
func (t *Transcript) rotate() error {
	if err := t.file.Close(); err != nil {
		return err
	}
	dir := filepath.Join(filepath.Dir(t.path), archiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	t.rotated++
	base := strings.TrimSuffix(filepath.Base(t.path), filepath.Ext(t.path))
	name := fmt.Sprintf("%s.%s.%d%s", base, time.Now().UTC().Format("20060102_150405"), t.rotated, filepath.Ext(t.path))
	if err := os.Rename(t.path, filepath.Join(dir, name)); err != nil {
		return err
	}
	return t.open()
}

func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

func (t *Transcript) Size() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}
