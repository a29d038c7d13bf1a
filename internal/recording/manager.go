package recording

import (
	"log/slog"
	"sync"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/adapters/realfs"
	"github.com/acolita/ptyd/internal/ports"
)

// Manager keeps one Recorder per session.
type Manager struct {
	mu        sync.RWMutex
	recorders map[string]*Recorder
	dir       string

	fs     ports.FileSystem
	clock  ports.Clock
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFileSystem sets the filesystem cast files are written to.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithClock sets the clock used for event offsets.
func WithClock(c ports.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager records into dir.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		recorders: make(map[string]*Recorder),
		dir:       dir,
		fs:        realfs.New(),
		clock:     realclock.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a recording for meta.SessionID, replacing any existing one.
func (m *Manager) Start(meta Meta) error {
	r, err := NewRecorder(m.dir, meta, m.fs, m.clock)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.recorders[meta.SessionID]
	m.recorders[meta.SessionID] = r
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

func (m *Manager) get(id string) *Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recorders[id]
}

// Output records output for id. Unknown sessions are ignored.
func (m *Manager) Output(id, data string) {
	if r := m.get(id); r != nil {
		if err := r.Output(data); err != nil {
			m.logger.Warn("recording write failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
}

// Input records typed input for id.
func (m *Manager) Input(id, data string) {
	if r := m.get(id); r != nil {
		_ = r.Input(data)
	}
}

// MaskedInput records n masked input bytes for id.
func (m *Manager) MaskedInput(id string, n int) {
	if r := m.get(id); r != nil {
		_ = r.MaskedInput(n)
	}
}

// Resize records a window change for id.
func (m *Manager) Resize(id string, cols, rows int) {
	if r := m.get(id); r != nil {
		_ = r.Resize(cols, rows)
	}
}

// Stop closes and forgets the recording for id.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	r := m.recorders[id]
	delete(m.recorders, id)
	m.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.Close()
}

// Path returns the cast file for id, or "".
func (m *Manager) Path(id string) string {
	if r := m.get(id); r != nil {
		return r.Path()
	}
	return ""
}

// CloseAll stops every recording.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.recorders
	m.recorders = make(map[string]*Recorder)
	m.mu.Unlock()

	for _, r := range all {
		r.Close()
	}
}
