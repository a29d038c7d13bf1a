// Package recording writes session output to asciicast v2 files.
package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acolita/ptyd/internal/ports"
)

// Recorder appends asciicast v2 events for one session.
// See: https://docs.asciinema.org/manual/asciicast/v2/
type Recorder struct {
	mu     sync.Mutex
	file   ports.FileHandle
	start  time.Time
	closed bool
	clock  ports.Clock
}

// Header is the first line of a cast file.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is one [time, type, data] line.
type Event struct {
	Time float64
	Type string
	Data string
}

// MarshalJSON encodes the event as a three-element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Time, e.Type, e.Data})
}

// Meta describes the session in the cast header.
type Meta struct {
	SessionID string
	Shell     string
	Cols      int
	Rows      int
}

// NewRecorder creates <dir>/<session>_<timestamp>.cast and writes the header.
func NewRecorder(dir string, meta Meta, fs ports.FileSystem, clock ports.Clock) (*Recorder, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	now := clock.Now()
	name := fmt.Sprintf("%s_%s.cast", meta.SessionID, now.Format("20060102_150405"))
	file, err := fs.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	header := Header{
		Version:   2,
		Width:     meta.Cols,
		Height:    meta.Rows,
		Timestamp: now.Unix(),
		Title:     meta.SessionID,
		Env:       map[string]string{"SHELL": meta.Shell, "TERM": "xterm-256color"},
	}
	line, err := json.Marshal(header)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Recorder{file: file, start: now, clock: clock}, nil
}

// Output records terminal output.
func (r *Recorder) Output(data string) error {
	return r.record("o", data)
}

// Input records typed input.
func (r *Recorder) Input(data string) error {
	return r.record("i", data)
}

// MaskedInput records n bytes of input as asterisks.
func (r *Recorder) MaskedInput(n int) error {
	return r.record("i", strings.Repeat("*", n))
}

// Resize records a window size change.
func (r *Recorder) Resize(cols, rows int) error {
	return r.record("r", fmt.Sprintf("%dx%d", cols, rows))
}

func (r *Recorder) record(kind, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	line, err := json.Marshal(Event{
		Time: r.clock.Now().Sub(r.start).Seconds(),
		Type: kind,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close closes the file. Later events are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Path is the cast file's name.
func (r *Recorder) Path() string {
	return r.file.Name()
}
