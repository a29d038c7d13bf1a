package session

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/adapters/realfs"
	"github.com/acolita/ptyd/internal/adapters/realrand"
	"github.com/acolita/ptyd/internal/config"
	"github.com/acolita/ptyd/internal/metrics"
	"github.com/acolita/ptyd/internal/ports"
	"github.com/acolita/ptyd/internal/prompt"
	"github.com/acolita/ptyd/internal/recording"
	"github.com/acolita/ptyd/internal/sudo"
)

// Manager is the registry of live sessions. The table lock only guards
// insert, remove and lookup; spawning and teardown happen outside it.
type Manager struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	reserved map[string]struct{}

	cfgMu   sync.RWMutex
	cfg     *config.Config
	prompts *prompt.Detector

	clock    ports.Clock
	rand     ports.Random
	fs       ports.FileSystem
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder *recording.Manager
	sudo     *sudo.Service
}

type entry struct {
	session *Session

	mu       sync.Mutex
	lastSent int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock sets the clock shared by the manager and its sessions.
func WithManagerClock(c ports.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithManagerRandom sets the source for generated session ids.
func WithManagerRandom(r ports.Random) ManagerOption {
	return func(m *Manager) { m.rand = r }
}

// WithManagerFileSystem sets the filesystem used to resolve defaults.
func WithManagerFileSystem(fsys ports.FileSystem) ManagerOption {
	return func(m *Manager) { m.fs = fsys }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics reports session lifecycle and traffic to mt.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithRecording records every session through rec.
func WithRecording(rec *recording.Manager) ManagerOption {
	return func(m *Manager) { m.recorder = rec }
}

// WithSudo enables RunSudo.
func WithSudo(s *sudo.Service) ManagerOption {
	return func(m *Manager) { m.sudo = s }
}

// NewManager creates an empty registry. A nil cfg means config.DefaultConfig().
func NewManager(cfg *config.Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := &Manager{
		entries:  make(map[string]*entry),
		reserved: make(map[string]struct{}),
		cfg:      cfg,
		clock:    realclock.New(),
		rand:     realrand.New(),
		fs:       realfs.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.prompts = promptDetector(cfg, m.logger)
	return m
}

// promptDetector builds the detector for cfg, skipping patterns that do not
// compile.
func promptDetector(cfg *config.Config, logger *slog.Logger) *prompt.Detector {
	var custom []prompt.Pattern
	for _, pc := range cfg.Engine.Prompts {
		p, err := prompt.Compile(pc.Name, pc.Regex, pc.Kind, pc.Mask)
		if err != nil {
			logger.Warn("ignoring prompt pattern", slog.String("error", err.Error()))
			continue
		}
		custom = append(custom, p)
	}
	return prompt.NewDetector(custom...)
}

// Config returns the configuration in effect.
func (m *Manager) Config() *config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// UpdateConfig applies a reloaded configuration. Engine settings affect
// sessions created afterwards; live sessions keep theirs.
func (m *Manager) UpdateConfig(cfg *config.Config) error {
	if m.sudo != nil {
		if err := m.sudo.Configure(cfg.Sudo); err != nil {
			return err
		}
	}
	detector := promptDetector(cfg, m.logger)
	m.cfgMu.Lock()
	m.cfg = cfg
	m.prompts = detector
	m.cfgMu.Unlock()
	m.logger.Info("configuration updated")
	return nil
}

// CreateOptions overrides the engine defaults for one session.
type CreateOptions struct {
	ID    string // empty: a random UUID
	Shell string
	Cwd   string
	Cols  uint16
	Rows  uint16
	Env   map[string]string
}

// Create spawns a session and registers it.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	cfg := m.Config()
	eng := cfg.Engine

	sc := Config{
		Shell: firstNonEmpty(opts.Shell, eng.Shell),
		Cwd:   firstNonEmpty(opts.Cwd, eng.Cwd),
		Cols:  opts.Cols,
		Rows:  opts.Rows,
		Env:   maps.Clone(eng.Env),
	}
	if sc.Cols == 0 {
		sc.Cols = eng.Cols
	}
	if sc.Rows == 0 {
		sc.Rows = eng.Rows
	}
	if len(opts.Env) > 0 {
		if sc.Env == nil {
			sc.Env = make(map[string]string, len(opts.Env))
		}
		maps.Copy(sc.Env, opts.Env)
	}
	sc = sc.resolve(m.fs)
	if !cfg.ShellAllowed(sc.Shell) {
		return nil, fmt.Errorf("%w: shell %s is not allowed", ErrInvalidInput, sc.Shell)
	}

	id, err := m.reserve(opts.ID, eng.MaxSessions)
	if err != nil {
		return nil, err
	}

	if m.recorder != nil {
		meta := recording.Meta{SessionID: id, Shell: sc.Shell, Cols: int(sc.Cols), Rows: int(sc.Rows)}
		if err := m.recorder.Start(meta); err != nil {
			m.logger.Warn("recording not started", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}

	sess, err := New(id, sc,
		WithClock(m.clock),
		WithFileSystem(m.fs),
		WithLogger(m.logger),
		WithReadChunkSize(eng.ReadChunkSize),
		WithPollInterval(eng.PollInterval),
		WithKillGrace(eng.KillGrace),
		WithCloseTimeout(eng.CloseTimeout),
		WithWriteTimeout(eng.WriteTimeout),
		WithOutputHook(m.observeOutput),
		WithInputHook(m.observeInput),
	)
	if err != nil {
		if m.recorder != nil {
			_ = m.recorder.Stop(id)
		}
		m.mu.Lock()
		delete(m.reserved, id)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	delete(m.reserved, id)
	m.entries[id] = &entry{session: sess}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionCreated()
	}
	return sess, nil
}

// reserve claims id (or a fresh UUID) against the session limit.
func (m *Manager) reserve(id string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxSessions
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.entries) + len(m.reserved); n >= limit {
		return "", fmt.Errorf("%w: max sessions reached (%d)", ErrAllocationFailure, limit)
	}
	if id == "" {
		u, err := uuid.NewRandomFromReader(m.rand)
		if err != nil {
			return "", fmt.Errorf("%w: session id: %w", ErrAllocationFailure, err)
		}
		id = u.String()
	}
	if _, ok := m.entries[id]; ok {
		return "", fmt.Errorf("%s: %w", id, ErrSessionExists)
	}
	if _, ok := m.reserved[id]; ok {
		return "", fmt.Errorf("%s: %w", id, ErrSessionExists)
	}
	m.reserved[id] = struct{}{}
	return id, nil
}

func (m *Manager) observeOutput(id, text string) {
	if m.metrics != nil {
		m.metrics.Output(len(text))
	}
	if m.recorder != nil {
		m.recorder.Output(id, text)
	}
}

func (m *Manager) observeInput(_ string, n int) {
	if m.metrics != nil {
		m.metrics.Input(n)
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return e, nil
}

// Get returns the live session registered under id.
func (m *Manager) Get(id string) (*Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Write sends data to the session's terminal. Input typed at a masked
// prompt is recorded as asterisks.
func (m *Manager) Write(id string, data []byte) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.write(e.session, data)
}

// RunCommand writes text and a newline.
func (m *Manager) RunCommand(id, text string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	return m.write(e.session, []byte(text+"\n"))
}

func (m *Manager) write(s *Session, data []byte) error {
	var masked bool
	if m.recorder != nil {
		if p := m.pendingPrompt(s); p != nil && p.Mask {
			masked = true
		}
	}
	if err := s.Write(data); err != nil {
		return err
	}
	if m.recorder != nil {
		if masked {
			m.recorder.MaskedInput(s.ID, len(data))
		} else {
			m.recorder.Input(s.ID, string(data))
		}
	}
	return nil
}

// Resize changes the window size. Resizing an inactive session succeeds.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := e.session.Resize(cols, rows); err != nil {
		return err
	}
	if m.recorder != nil && e.session.Active() {
		m.recorder.Resize(id, int(cols), int(rows))
	}
	return nil
}

// Clear empties the output buffer and rewinds the registry cursor.
func (m *Manager) Clear(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !e.session.Active() {
		return fmt.Errorf("%s: %w", id, ErrSessionInactive)
	}
	e.mu.Lock()
	e.session.Clear()
	e.lastSent = 0
	e.mu.Unlock()
	return nil
}

// IncrementalOutput returns output appended since cursor and the next cursor.
// Like NextOutput and Output it also works on an inactive session, so output
// written just before the shell exited can still be drained.
func (m *Manager) IncrementalOutput(id string, cursor int) (string, int, error) {
	e, err := m.lookup(id)
	if err != nil {
		return "", 0, err
	}
	delta, next := e.session.IncrementalOutput(cursor)
	return delta, next, nil
}

// NextOutput returns output not yet returned by an earlier NextOutput. It
// works on inactive sessions.
func (m *Manager) NextOutput(id string) (string, error) {
	e, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delta, next := e.session.IncrementalOutput(e.lastSent)
	e.lastSent = next
	return delta, nil
}

// Output returns the whole buffer, including for an inactive session.
func (m *Manager) Output(id string) (string, error) {
	e, err := m.lookup(id)
	if err != nil {
		return "", err
	}
	return e.session.Output(), nil
}

// Status snapshots one session.
func (m *Manager) Status(id string) (Status, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return m.status(e.session), nil
}

// promptTail bounds how much output is scanned for a pending prompt.
const promptTail = 512

func (m *Manager) detector() *prompt.Detector {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.prompts
}

// pendingPrompt reports the prompt the session's output ends with, if any.
func (m *Manager) pendingPrompt(s *Session) *prompt.Detection {
	if !s.Active() {
		return nil
	}
	return m.detector().Detect(s.Tail(promptTail))
}

func (m *Manager) status(s *Session) Status {
	st := s.Status()
	st.Prompt = m.pendingPrompt(s)
	return st
}

// ListActive returns the ids of active sessions, sorted.
func (m *Manager) ListActive() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id, e := range m.entries {
		if e.session.Active() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// List snapshots every registered session, oldest first.
func (m *Manager) List() []Status {
	sessions := m.snapshot()
	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, m.status(s))
	}
	slices.SortFunc(out, func(a, b Status) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.session)
	}
	return out
}

// Count is the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Kill terminates the session's process group and removes it. The entry
// is gone even when the kill itself reports an error.
func (m *Manager) Kill(id string) error {
	e, err := m.remove(id)
	if err != nil {
		return err
	}
	err = e.session.Kill()
	m.finish(id, reasonKilled)
	return err
}

// Close hangs up the session and removes it. Closing an inactive session
// succeeds.
func (m *Manager) Close(id string) error {
	e, err := m.remove(id)
	if err != nil {
		return err
	}
	err = e.session.Close()
	m.finish(id, reasonClosed)
	return err
}

func (m *Manager) remove(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	delete(m.entries, id)
	return e, nil
}

// removeWhere unregisters every session matching pred.
func (m *Manager) removeWhere(pred func(*Session) bool) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for id, e := range m.entries {
		if pred(e.session) {
			out = append(out, e.session)
			delete(m.entries, id)
		}
	}
	return out
}

func (m *Manager) finish(id, reason string) {
	if m.recorder != nil {
		if err := m.recorder.Stop(id); err != nil {
			m.logger.Warn("recording close failed", slog.String("session_id", id), slog.String("error", err.Error()))
		}
	}
	if m.sudo != nil {
		m.sudo.Forget(id)
	}
	if m.metrics != nil {
		m.metrics.SessionRemoved(reason)
	}
}

// closeAll closes sessions in parallel and waits for all of them.
func (m *Manager) closeAll(sessions []*Session, reason string) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Close(); err != nil {
				m.logger.Warn("close failed", slog.String("session_id", s.ID), slog.String("error", err.Error()))
			}
			m.finish(s.ID, reason)
		}()
	}
	wg.Wait()
}

// CleanupInactive removes every session idle for at least maxAge and
// returns how many were removed. maxAge 0 removes all sessions; a negative
// maxAge removes none.
func (m *Manager) CleanupInactive(maxAge time.Duration) int {
	if maxAge < 0 {
		return 0
	}
	now := m.clock.Now()
	stale := m.removeWhere(func(s *Session) bool {
		return now.Sub(s.LastActivity()) >= maxAge
	})
	m.closeAll(stale, reasonIdle)
	if len(stale) > 0 {
		m.logger.Info("idle sessions removed", slog.Int("count", len(stale)), slog.Duration("max_age", maxAge))
	}
	return len(stale)
}

// CleanupExited removes sessions whose terminal has closed or whose shell
// has exited.
func (m *Manager) CleanupExited() int {
	gone := m.removeWhere(func(s *Session) bool {
		return !s.Active() || s.Exited()
	})
	m.closeAll(gone, reasonExited)
	return len(gone)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	all := m.removeWhere(func(*Session) bool { return true })
	m.closeAll(all, reasonShutdown)
	if m.recorder != nil {
		m.recorder.CloseAll()
	}
}

// RunSudo runs command with root privileges in the session's working
// directory. The password may be nil when one is cached for the session.
func (m *Manager) RunSudo(ctx context.Context, id, command string, password []byte) (*sudo.Result, error) {
	if m.sudo == nil {
		return nil, ErrSudoUnavailable
	}
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if m.recorder != nil && len(password) > 0 {
		m.recorder.MaskedInput(id, len(password))
	}
	e.session.touch()
	return m.sudo.Run(ctx, sudo.Request{
		SessionID: id,
		Command:   command,
		Dir:       e.session.Config().Cwd,
		Password:  password,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
