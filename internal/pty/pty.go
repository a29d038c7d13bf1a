// Package pty is the only place that touches pty pairs, ioctls and signals.
// Everything above it sees a *Process: a master descriptor plus the child it
// is attached to.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
	"golang.org/x/sys/unix"
)

var (
	// ErrNotFound means the shell binary could not be resolved.
	ErrNotFound = errors.New("shell not found")

	// ErrUnkillable means the child survived SIGKILL for the whole grace period.
	ErrUnkillable = errors.New("process did not exit after SIGKILL")
)

// Options describes the child to start on a fresh pty.
type Options struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	Cols uint16
	Rows uint16
}

// Process is a child attached to the slave side of a pty and the master
// descriptor the parent keeps.
type Process struct {
	cmd    *exec.Cmd
	master *os.File

	closeOnce sync.Once
	closeErr  error

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
}

// Spawn opens a pty pair sized cols x rows and starts opts.Path as a session
// leader with the slave as stdin, stdout, stderr and controlling terminal.
// The slave is closed in the parent; the master is returned in non-blocking
// mode so reads honour deadlines.
func Spawn(opts Options) (*Process, error) {
	path, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, opts.Path)
	}

	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	ws := &creackpty.Winsize{Cols: opts.Cols, Rows: opts.Rows}
	attrs := &syscall.SysProcAttr{Setsid: true, Setctty: true}
	raw, err := creackpty.StartWithAttrs(cmd, ws, attrs)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	master, err := pollable(raw)
	if err != nil {
		_ = raw.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("prepare master: %w", err)
	}

	p := &Process{
		cmd:      cmd,
		master:   master,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go p.wait()
	return p, nil
}

// pollable re-wraps the master as a non-blocking descriptor registered with
// the runtime poller and closes the original.
func pollable(f *os.File) (*os.File, error) {
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	nf := os.NewFile(uintptr(fd), f.Name())
	if err := f.Close(); err != nil {
		nf.Close()
		return nil, err
	}
	return nf, nil
}

func (p *Process) wait() {
	_ = p.cmd.Wait()
	code := -1
	if ps := p.cmd.ProcessState; ps != nil {
		code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
	}
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.done)
}

// Pid returns the child's process id, which is also its process group id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the child's exit status once it has been reaped.
// A child killed by a signal reports 128+signal.
func (p *Process) ExitCode() (int, bool) {
	if !p.Exited() {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, true
}

func (p *Process) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *Process) Write(b []byte) (int, error) { return p.master.Write(b) }

func (p *Process) SetReadDeadline(t time.Time) error  { return p.master.SetReadDeadline(t) }
func (p *Process) SetWriteDeadline(t time.Time) error { return p.master.SetWriteDeadline(t) }

// Resize applies TIOCSWINSZ to the master and sends SIGWINCH to the
// terminal's foreground process group, or to the child when the group
// cannot be read.
func (p *Process) Resize(cols, rows uint16) error {
	rc, err := p.master.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	pgrp := 0
	err = rc.Control(func(fd uintptr) {
		ws := &unix.Winsize{Col: cols, Row: rows}
		if ioErr = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, ws); ioErr != nil {
			return
		}
		if g, gerr := unix.IoctlGetInt(int(fd), unix.TIOCGPGRP); gerr == nil && g > 0 {
			pgrp = g
		}
	})
	if err != nil {
		return err
	}
	if ioErr != nil {
		return fmt.Errorf("set window size: %w", ioErr)
	}

	if pgrp > 0 {
		if err := unix.Kill(-pgrp, unix.SIGWINCH); err == nil {
			return nil
		}
	}
	if err := unix.Kill(p.Pid(), unix.SIGWINCH); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal winch: %w", err)
	}
	return nil
}

// Size reads the current window size back from the master.
func (p *Process) Size() (cols, rows uint16, err error) {
	rc, err := p.master.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var ws *unix.Winsize
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ws, ioErr = unix.IoctlGetWinsize(int(fd), unix.TIOCGWINSZ)
	}); err != nil {
		return 0, 0, err
	}
	if ioErr != nil {
		return 0, 0, ioErr
	}
	return ws.Col, ws.Row, nil
}

// Signal delivers sig to the child's process group. A group that is already
// gone is not an error.
func (p *Process) Signal(sig unix.Signal) error {
	if p.Exited() {
		return nil
	}
	err := unix.Kill(-p.Pid(), sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(p.Pid(), sig)
	}
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

// Terminate sends SIGTERM to the process group, waits up to grace, then
// sends SIGKILL. It returns ErrUnkillable when the child is still not reaped
// after killWait(grace).
func (p *Process) Terminate(grace time.Duration) error {
	if p.Exited() {
		return nil
	}
	if err := p.Signal(unix.SIGTERM); err != nil {
		return fmt.Errorf("sigterm: %w", err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	if err := p.Signal(unix.SIGKILL); err != nil {
		return fmt.Errorf("sigkill: %w", err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(killWait(grace)):
		return fmt.Errorf("pid %d: %w", p.Pid(), ErrUnkillable)
	}
}

// killWait bounds the post-SIGKILL wait; reaping can lag a short grace.
func killWait(grace time.Duration) time.Duration {
	if grace < time.Second {
		return time.Second
	}
	return grace
}

// CloseMaster closes the master descriptor exactly once. The shell sees
// SIGHUP and EOF on its terminal.
func (p *Process) CloseMaster() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.master.Close()
	})
	return p.closeErr
}

// IsTimeout reports a read or write that hit its deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// IsWouldBlock reports the retryable no-data-yet conditions.
func IsWouldBlock(err error) bool {
	return IsTimeout(err) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// IsClosed reports conditions that mean the terminal is gone: EOF, EIO
// from a master whose slave has no more holders, or a closed descriptor.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)
}
