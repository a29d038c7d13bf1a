package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/acolita/ptyd/internal/logging"
	"github.com/acolita/ptyd/internal/security"
	"github.com/acolita/ptyd/internal/session"
	"github.com/acolita/ptyd/internal/sudo"
)

// MaxLineSize bounds a single request line.
const MaxLineSize = 4 << 20

type handlerFunc func(ctx context.Context, req *Request) Response

// Server dispatches requests to a session.Manager.
type Server struct {
	mgr      *session.Manager
	detector *sudo.Detector
	logger   *slog.Logger
	version  string
	handlers map[string]handlerFunc

	wmu sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported in the ready banner.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a bridge over mgr.
func NewServer(mgr *session.Manager, opts ...Option) *Server {
	s := &Server{
		mgr:      mgr,
		detector: sudo.NewDetector(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[string]handlerFunc{
		"create_session":     s.createSession,
		"write_to_session":   s.writeToSession,
		"get_session_output": s.getSessionOutput,
		"resize_session":     s.resizeSession,
		"kill_session":       s.killSession,
		"close_session":      s.closeSession,
		"clear_session":      s.clearSession,
		"run_command":        s.runCommand,
		"get_session_status": s.getSessionStatus,
		"list_sessions":      s.listSessions,
		"cleanup_inactive":   s.cleanupInactive,
		"sudo_command":       s.sudoCommand,
		"requires_sudo":      s.requiresSudo,
		"ping":               s.ping,
	}
	return s
}

// Serve writes the ready banner, then handles the lines of r and writes
// responses to w. Requests for one session are handled in the order they
// were read; requests for different sessions run concurrently. It returns
// at EOF once every in-flight request has been answered, or when ctx is
// cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	emit := func(v any) {
		s.wmu.Lock()
		defer s.wmu.Unlock()
		if err := enc.Encode(v); err != nil {
			s.logger.Error("write response failed", slog.String("error", err.Error()))
		}
	}

	emit(Banner{Ready: true, Message: "ptyd ready", Version: s.version, PID: os.Getpid()})

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), MaxLineSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	d := newDispatcher(func(line []byte) {
		emit(s.HandleLine(ctx, line))
	})
	defer d.wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			d.wait()
			if err != nil {
				return fmt.Errorf("read requests: %w", err)
			}
			return nil
		case line := <-lines:
			d.submit(line)
		}
	}
}

// HandleLine decodes and handles one request line.
func (s *Server) HandleLine(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{ID: nullID, Error: fmt.Sprintf("%v: %v", session.ErrInvalidInput, err)}
	}
	return s.Handle(ctx, &req)
}

// Handle runs one decoded request.
func (s *Server) Handle(ctx context.Context, req *Request) Response {
	start := time.Now()
	h, ok := s.handlers[req.Command]
	var resp Response
	if ok {
		resp = h(ctx, req)
	} else {
		resp = Response{Error: "unknown command: " + req.Command}
	}
	resp.ID = req.ID
	if len(resp.ID) == 0 {
		resp.ID = nullID
	}

	level := slog.LevelDebug
	if !resp.Success {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "request handled",
		slog.String("command", req.Command),
		slog.String("session_id", firstNonEmpty(resp.SessionID, req.SessionID)),
		slog.Bool("success", resp.Success),
		slog.String("error", resp.Error),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp
}

func ok() Response { return Response{Success: true} }

func fail(err error) Response {
	return Response{Error: err.Error()}
}

func requireSession(req *Request) error {
	if req.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", session.ErrInvalidInput)
	}
	return nil
}

func (s *Server) createSession(_ context.Context, req *Request) Response {
	sess, err := s.mgr.Create(session.CreateOptions{
		ID:    req.SessionID,
		Shell: req.Shell,
		Cwd:   req.Cwd,
		Cols:  req.Cols,
		Rows:  req.Rows,
		Env:   req.Env,
	})
	if err != nil {
		return fail(err)
	}
	resp := ok()
	resp.SessionID = sess.ID
	resp.Status = ptr(sess.Status())
	return resp
}

func (s *Server) writeToSession(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if err := s.mgr.Write(req.SessionID, []byte(req.Data)); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) runCommand(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	text := firstNonEmpty(req.CommandText, req.Data)
	if err := s.mgr.RunCommand(req.SessionID, text); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) getSessionOutput(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if req.FromIndex == nil {
		out, err := s.mgr.Output(req.SessionID)
		if err != nil {
			return fail(err)
		}
		resp := ok()
		resp.Output = &out
		resp.NextIndex = ptr(len(out))
		return resp
	}
	out, next, err := s.mgr.IncrementalOutput(req.SessionID, *req.FromIndex)
	if err != nil {
		return fail(err)
	}
	resp := ok()
	resp.Output = &out
	resp.NextIndex = &next
	return resp
}

func (s *Server) resizeSession(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if err := s.mgr.Resize(req.SessionID, req.Cols, req.Rows); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) killSession(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if err := s.mgr.Kill(req.SessionID); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) closeSession(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if err := s.mgr.Close(req.SessionID); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) clearSession(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	if err := s.mgr.Clear(req.SessionID); err != nil {
		return fail(err)
	}
	return ok()
}

func (s *Server) getSessionStatus(_ context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	st, err := s.mgr.Status(req.SessionID)
	if err != nil {
		return fail(err)
	}
	resp := ok()
	resp.SessionID = st.ID
	resp.Status = &st
	return resp
}

func (s *Server) listSessions(context.Context, *Request) Response {
	resp := ok()
	resp.Sessions = ptr(s.mgr.List())
	return resp
}

func (s *Server) cleanupInactive(_ context.Context, req *Request) Response {
	maxAge := s.mgr.Config().Reaper.MaxIdle
	if req.MaxAge != nil {
		if *req.MaxAge < 0 {
			return fail(fmt.Errorf("%w: max_age must not be negative", session.ErrInvalidInput))
		}
		maxAge = secondsToDuration(*req.MaxAge)
	}
	resp := ok()
	resp.Removed = ptr(s.mgr.CleanupInactive(maxAge))
	return resp
}

// secondsToDuration converts seconds to a Duration, saturating at the
// largest representable value.
func secondsToDuration(secs float64) time.Duration {
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

func (s *Server) sudoCommand(ctx context.Context, req *Request) Response {
	if err := requireSession(req); err != nil {
		return fail(err)
	}
	text := firstNonEmpty(req.CommandText, req.Data)
	s.logger.Debug("sudo requested",
		slog.String("session_id", req.SessionID),
		slog.String("command", logging.Truncate(text, 200)),
	)

	var pw []byte
	if req.Password != "" {
		pw = []byte(req.Password)
		defer security.WipeBytes(pw)
	}
	res, err := s.mgr.RunSudo(ctx, req.SessionID, text, pw)

	var resp Response
	if res != nil {
		out := res.Combined()
		resp.Output = &out
		resp.ExitCode = ptr(res.ExitCode)
		resp.TimedOut = res.TimedOut
		if res.ErrorType != sudo.ErrorNone {
			resp.SudoError = res.ErrorType.String()
			resp.Hint = sudo.SuggestFix(res.ErrorType)
		}
	}
	if err != nil {
		if errors.Is(err, sudo.ErrPasswordRequired) {
			resp.Hint = sudo.SuggestFix(sudo.ErrorPasswordRequired)
		}
		resp.Error = err.Error()
		return resp
	}
	resp.Success = res.Success
	if !res.Success {
		resp.Error = fmt.Sprintf("command exited with status %d", res.ExitCode)
	}
	return resp
}

func (s *Server) requiresSudo(_ context.Context, req *Request) Response {
	text := firstNonEmpty(req.CommandText, req.Data)
	if text == "" {
		return fail(fmt.Errorf("%w: command_text is required", session.ErrInvalidInput))
	}
	resp := ok()
	resp.RequiresSudo = ptr(sudo.RequiresPrivilege(text))
	resp.Prediction = s.detector.Predict(text)
	return resp
}

func (s *Server) ping(context.Context, *Request) Response {
	resp := ok()
	resp.Output = ptr("pong")
	return resp
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
