// Package session runs interactive shells on local ptys and buffers their
// output for incremental polling.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/adapters/realfs"
	"github.com/acolita/ptyd/internal/ports"
	"github.com/acolita/ptyd/internal/pty"
)

// Session owns one pty master and the shell attached to its slave. A
// single reader goroutine drains the master into the output buffer.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg  Config
	proc *pty.Process

	clock        ports.Clock
	fs           ports.FileSystem
	logger       *slog.Logger
	chunkSize    int
	pollInterval time.Duration
	killGrace    time.Duration
	closeTimeout time.Duration
	writeTimeout time.Duration
	onOutput     func(id, text string)
	onInput      func(id string, n int)

	bufMu sync.RWMutex
	buf   []byte

	writeMu sync.Mutex

	sizeMu     sync.Mutex
	cols, rows uint16

	active       atomic.Bool
	inactiveOnce sync.Once
	lastActivity atomic.Int64
	closeOnce    sync.Once
	readerDone   chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for activity stamps and backoff sleeps.
func WithClock(c ports.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithFileSystem sets the filesystem used to resolve defaults.
func WithFileSystem(fsys ports.FileSystem) Option {
	return func(s *Session) { s.fs = fsys }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithReadChunkSize sets the largest single read from the master.
func WithReadChunkSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithPollInterval sets the reader backoff when no data is available.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithKillGrace sets how long Kill waits between SIGTERM and SIGKILL.
func WithKillGrace(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.killGrace = d
		}
	}
}

// WithCloseTimeout sets how long Close waits for the shell to exit.
func WithCloseTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.closeTimeout = d
		}
	}
}

// WithWriteTimeout bounds a single Write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithOutputHook is called from the reader goroutine with each decoded
// chunk, outside the buffer lock.
func WithOutputHook(fn func(id, text string)) Option {
	return func(s *Session) { s.onOutput = fn }
}

// WithInputHook is called after each successful Write with the byte count.
func WithInputHook(fn func(id string, n int)) Option {
	return func(s *Session) { s.onInput = fn }
}

// New spawns cfg.Shell on a fresh pty and starts the reader. A shell that
// cannot be found fails with ErrShellNotFound; any other spawn failure is
// ErrAllocationFailure.
func New(id string, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		ID:           id,
		clock:        realclock.New(),
		fs:           realfs.New(),
		logger:       slog.Default(),
		chunkSize:    DefaultReadChunkSize,
		pollInterval: DefaultPollInterval,
		killGrace:    DefaultKillGrace,
		closeTimeout: DefaultCloseTimeout,
		writeTimeout: DefaultWriteTimeout,
		readerDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session_id", id))

	s.cfg = cfg.resolve(s.fs)
	if err := s.cfg.validate(s.fs); err != nil {
		return nil, err
	}

	proc, err := pty.Spawn(pty.Options{
		Path: s.cfg.Shell,
		Args: shellArgs,
		Dir:  s.cfg.Cwd,
		Env:  environ(os.Environ(), s.cfg.Cwd, s.cfg.Env),
		Cols: s.cfg.Cols,
		Rows: s.cfg.Rows,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocationFailure, err)
	}

	s.proc = proc
	s.cols, s.rows = s.cfg.Cols, s.cfg.Rows
	s.CreatedAt = s.clock.Now()
	s.lastActivity.Store(s.CreatedAt.UnixNano())
	s.active.Store(true)

	s.logger.Info("session started",
		slog.String("shell", s.cfg.Shell),
		slog.String("cwd", s.cfg.Cwd),
		slog.Int("pid", proc.Pid()),
	)

	go s.readLoop()
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.readerDone)

	dec := newUTF8Stream()
	chunk := make([]byte, s.chunkSize)
	for s.active.Load() {
		_ = s.proc.SetReadDeadline(time.Now().Add(s.pollInterval))
		n, err := s.proc.Read(chunk)
		if n > 0 {
			s.appendOutput(dec.decode(chunk[:n], false))
		}
		if err == nil {
			continue
		}

		switch {
		case pty.IsTimeout(err):
		case pty.IsWouldBlock(err):
			s.clock.Sleep(s.pollInterval)
		default:
			s.appendOutput(dec.flush())
			if !pty.IsClosed(err) {
				s.logger.Warn("read failed", slog.String("error", err.Error()))
			}
			s.markInactive("terminal closed")
			return
		}
	}
}

func (s *Session) appendOutput(text string) {
	if text == "" {
		return
	}
	s.bufMu.Lock()
	s.buf = append(s.buf, text...)
	s.bufMu.Unlock()

	s.touch()
	if s.onOutput != nil {
		s.onOutput(s.ID, text)
	}
}

// touch moves last activity forward to now; it never moves it back.
func (s *Session) touch() {
	now := s.clock.Now().UnixNano()
	for {
		old := s.lastActivity.Load()
		if now <= old || s.lastActivity.CompareAndSwap(old, now) {
			return
		}
	}
}

func (s *Session) markInactive(reason string) {
	s.inactiveOnce.Do(func() {
		s.active.Store(false)
		s.logger.Info("session inactive", slog.String("reason", reason))
	})
}

// Active reports whether the session still accepts input.
func (s *Session) Active() bool {
	return s.active.Load()
}

// LastActivity is the time of the latest write or successful read.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Config returns the resolved configuration the session was started with.
func (s *Session) Config() Config {
	return s.cfg
}

// Pid returns the shell's process id.
func (s *Session) Pid() int {
	return s.proc.Pid()
}

// Exited reports whether the shell process has been reaped.
func (s *Session) Exited() bool {
	return s.proc.Exited()
}

// Write sends all of data to the shell, retrying short writes.
func (s *Session) Write(data []byte) error {
	if !s.active.Load() {
		return fmt.Errorf("%s: %w", s.ID, ErrSessionInactive)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := len(data)
	for len(data) > 0 {
		_ = s.proc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		n, err := s.proc.Write(data)
		data = data[n:]
		if err == nil {
			continue
		}
		switch {
		case pty.IsTimeout(err):
			return fmt.Errorf("%w: write to %s timed out after %s", ErrIOFailure, s.ID, s.writeTimeout)
		case pty.IsWouldBlock(err):
			s.clock.Sleep(s.pollInterval)
		case pty.IsClosed(err):
			s.markInactive("terminal closed")
			return fmt.Errorf("%s: %w", s.ID, ErrSessionInactive)
		default:
			return fmt.Errorf("%w: write to %s: %w", ErrIOFailure, s.ID, err)
		}
	}

	s.touch()
	if s.onInput != nil {
		s.onInput(s.ID, total)
	}
	return nil
}

// RunCommand writes text followed by a newline.
func (s *Session) RunCommand(text string) error {
	return s.Write([]byte(text + "\n"))
}

// Resize changes the window size and notifies the foreground job. Resizing
// a session that is no longer active succeeds without doing anything.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidInput, cols, rows)
	}
	if !s.active.Load() {
		return nil
	}
	if err := s.proc.Resize(cols, rows); err != nil {
		if !s.active.Load() || errors.Is(err, os.ErrClosed) {
			return nil
		}
		return fmt.Errorf("%w: resize %s: %w", ErrIOFailure, s.ID, err)
	}

	s.sizeMu.Lock()
	s.cols, s.rows = cols, rows
	s.sizeMu.Unlock()
	return nil
}

// Size returns the last window size applied.
func (s *Session) Size() (cols, rows uint16) {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	return s.cols, s.rows
}

// IncrementalOutput returns everything appended since cursor and the cursor
// to pass next time. A cursor at or past the end yields ("", cursor).
func (s *Session) IncrementalOutput(cursor int) (string, int) {
	if cursor < 0 {
		cursor = 0
	}
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	if cursor >= len(s.buf) {
		return "", cursor
	}
	return string(s.buf[cursor:]), len(s.buf)
}

// Output returns a copy of the whole buffer.
func (s *Session) Output() string {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	return string(s.buf)
}

// Tail returns at most the last n bytes of the buffer, which may start
// inside a multi-byte rune.
func (s *Session) Tail(n int) string {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	if n < len(s.buf) {
		return string(s.buf[len(s.buf)-n:])
	}
	return string(s.buf)
}

// BufferSize is the current buffer length in bytes.
func (s *Session) BufferSize() int {
	s.bufMu.RLock()
	defer s.bufMu.RUnlock()
	return len(s.buf)
}

// Clear drops all buffered output. The shell is untouched.
func (s *Session) Clear() {
	s.bufMu.Lock()
	s.buf = nil
	s.bufMu.Unlock()
}

// Kill terminates the shell's process group (SIGTERM, then SIGKILL after
// the kill grace) and releases the master. The session is inactive
// afterwards even when the process could not be killed.
func (s *Session) Kill() error {
	err := s.proc.Terminate(s.killGrace)
	s.release("killed")
	if err != nil {
		s.logger.Error("kill failed", slog.String("error", err.Error()))
		return fmt.Errorf("kill %s: %w", s.ID, err)
	}
	return nil
}

// Close hangs up the terminal and waits for the shell to exit, falling back
// to Kill after the close timeout. Closing twice is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.markInactive("closed")
		_ = s.proc.CloseMaster()

		select {
		case <-s.proc.Done():
		case <-time.After(s.closeTimeout):
			s.logger.Warn("shell ignored hangup, terminating", slog.Duration("waited", s.closeTimeout))
			if kerr := s.proc.Terminate(s.killGrace); kerr != nil {
				err = fmt.Errorf("close %s: %w", s.ID, kerr)
			}
		}
		<-s.readerDone
	})
	return err
}

func (s *Session) release(reason string) {
	s.closeOnce.Do(func() {
		s.markInactive(reason)
		_ = s.proc.CloseMaster()
		<-s.readerDone
	})
}

// Status takes a snapshot of the session.
func (s *Session) Status() Status {
	cols, rows := s.Size()
	st := Status{
		ID:           s.ID,
		Active:       s.Active(),
		Executing:    !s.proc.Exited(),
		LastActivity: s.LastActivity().Unix(),
		BufferSize:   s.BufferSize(),
		Cwd:          s.cfg.Cwd,
		PID:          s.proc.Pid(),
		Shell:        s.cfg.Shell,
		Cols:         cols,
		Rows:         rows,
		CreatedAt:    s.CreatedAt,
	}
	if code, ok := s.proc.ExitCode(); ok {
		st.ExitCode = &code
	}
	return st
}
