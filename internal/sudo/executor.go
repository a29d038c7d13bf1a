package sudo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/acolita/ptyd/internal/adapters/realclock"
	"github.com/acolita/ptyd/internal/ports"
	"github.com/acolita/ptyd/internal/security"
)

// DefaultTimeout bounds a single sudo invocation.
const DefaultTimeout = 60 * time.Second

// waitDelay is how long Wait keeps draining pipes after the process group
// has been killed.
const waitDelay = time.Second

// Request is one privileged command.
type Request struct {
	SessionID string
	Command   string
	Dir       string
	Password  []byte
}

// Result is the outcome of a command that was started.
type Result struct {
	Success   bool          `json:"success"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out"`
	ErrorType ErrorType     `json:"-"`
}

// Combined returns stdout followed by the filtered stderr.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return strings.TrimRight(r.Stdout, "\n") + "\n" + r.Stderr
}

// Executor runs `sudo -S -p "" sh -c <command>` with the password on stdin.
type Executor struct {
	mu      sync.RWMutex
	binary  string
	timeout time.Duration

	clock  ports.Clock
	logger *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock sets the clock used to measure durations.
func WithExecutorClock(c ports.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an executor for binary (normally "sudo").
func NewExecutor(binary string, timeout time.Duration, opts ...ExecutorOption) *Executor {
	e := &Executor{clock: realclock.New(), logger: slog.Default()}
	e.Configure(binary, timeout)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure replaces the binary and timeout for later calls.
func (e *Executor) Configure(binary string, timeout time.Duration) {
	if binary == "" {
		binary = "sudo"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	e.mu.Lock()
	e.binary, e.timeout = binary, timeout
	e.mu.Unlock()
}

// Binary returns the configured sudo binary.
func (e *Executor) Binary() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.binary
}

// Execute runs req and waits for it, up to the timeout. A leading "sudo "
// in the command is dropped. On timeout the whole process group is killed
// and ErrTimeout is returned along with a Result whose TimedOut is set.
// req.Password is not modified.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	command := strings.TrimSpace(StripSudoPrefix(req.Command))
	if command == "" {
		return nil, ErrEmptyCommand
	}

	e.mu.RLock()
	binary, timeout := e.binary, e.timeout
	e.mu.RUnlock()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, "-S", "-p", "", "sh", "-c", command)
	cmd.Dir = req.Dir
	cmd.Env = withoutAskpass(os.Environ())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	e.logger.Debug("running sudo command",
		slog.String("session_id", req.SessionID),
		slog.String("command", command),
	)

	start := e.clock.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	line := make([]byte, 0, len(req.Password)+1)
	line = append(append(line, req.Password...), '\n')
	if _, err := stdin.Write(line); err != nil {
		e.logger.Debug("sudo closed stdin early", slog.String("error", err.Error()))
	}
	security.WipeBytes(line)
	_ = stdin.Close()

	waitErr := cmd.Wait()

	raw := stderr.String()
	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    FilterDiagnostics(raw),
		Duration:  e.clock.Now().Sub(start),
		ErrorType: ParseSudoError(raw),
		ExitCode:  -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		e.logger.Warn("sudo command timed out",
			slog.String("session_id", req.SessionID),
			slog.Duration("timeout", timeout),
		)
		return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("wait for %s: %w", binary, waitErr)
	}
	res.Success = waitErr == nil

	e.logger.Info("sudo command finished",
		slog.String("session_id", req.SessionID),
		slog.Bool("success", res.Success),
		slog.Int("exit_code", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func withoutAskpass(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "SUDO_ASKPASS=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}
