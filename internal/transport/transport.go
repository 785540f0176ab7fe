// Package transport implements the newline-delimited JSON protocol between the bridge and
// its controller: commands in on one stream, events out on another.
package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/msageha/craftbridge/internal/model"
)

// MaxLineBytes bounds one inbound record.
const MaxLineBytes = 1 << 20

// ErrLineTooLong marks an inbound line longer than MaxLineBytes. The line is skipped
// through its newline and decoding carries on.
var ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineBytes)

// MalformedError is an inbound line that is not a JSON object.
type MalformedError struct {
	Line string
	Err  error
}

func (e *MalformedError) Error() string {
	if errors.Is(e.Err, ErrLineTooLong) {
		return "Invalid JSON: " + e.Err.Error()
	}
	return fmt.Sprintf("Invalid JSON: %s", e.Line)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Decoder reads one command per line. Blank lines are skipped.
type Decoder struct {
	r    *bufio.Reader
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next command, a *MalformedError for a bad line (the stream stays
// usable), or io.EOF when the stream ends.
func (d *Decoder) Next() (model.Command, error) {
	for {
		raw, err := d.readLine()
		if err != nil {
			return model.Command{}, err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var cmd model.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return model.Command{}, &MalformedError{Line: string(raw), Err: err}
		}
		return cmd, nil
	}
}

// readLine returns the next line without its newline. A final line without one still
// counts. Bytes past MaxLineBytes are read and dropped, never buffered.
func (d *Decoder) readLine() ([]byte, error) {
	var (
		buf  []byte
		size int
	)
	for {
		chunk, err := d.r.ReadSlice('\n')
		size += len(chunk)
		if size <= MaxLineBytes+1 {
			buf = append(buf, chunk...)
		}
		switch {
		case err == nil:
			size--
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if size == 0 {
				return nil, io.EOF
			}
		default:
			return nil, fmt.Errorf("read commands: %w", err)
		}
		d.line++
		if size > MaxLineBytes {
			return nil, &MalformedError{Err: ErrLineTooLong}
		}
		return bytes.TrimSuffix(buf, []byte("\n")), nil
	}
}

// Line is the number of lines consumed so far.
func (d *Decoder) Line() int { return d.line }

// Encoder writes one event per line. Concurrent calls never interleave.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Name, err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	// io.Copy retries short writes.
	if _, err := io.Copy(e.w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write event %s: %w", ev.Name, err)
	}
	return nil
}
