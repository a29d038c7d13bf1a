package pty

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func spawnSh(t *testing.T, cols, rows uint16) *Process {
	t.Helper()
	requireShell(t)
	p, err := Spawn(Options{
		Path: "/bin/sh",
		Dir:  t.TempDir(),
		Env:  []string{"PATH=/usr/bin:/bin", "TERM=xterm-256color", "PS1=$ "},
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	t.Cleanup(func() {
		p.CloseMaster()
		p.Terminate(50 * time.Millisecond)
	})
	return p
}

// readUntil drains the master until want shows up or the deadline passes.
func readUntil(t *testing.T, p *Process, want string, within time.Duration) string {
	t.Helper()
	var out bytes.Buffer
	buf := make([]byte, 4096)
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		p.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := p.Read(buf)
		out.Write(buf[:n])
		if strings.Contains(out.String(), want) {
			return out.String()
		}
		if err != nil && !IsWouldBlock(err) {
			t.Fatalf("Read() error = %v (output so far %q)", err, out.String())
		}
	}
	t.Fatalf("timed out waiting for %q, got %q", want, out.String())
	return ""
}

func TestSpawn_NotFound(t *testing.T) {
	_, err := Spawn(Options{Path: "/definitely/not/a/shell", Cols: 80, Rows: 24})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Spawn() error = %v, want ErrNotFound", err)
	}
}

func TestSpawn_EchoRoundTrip(t *testing.T) {
	p := spawnSh(t, 80, 24)
	if p.Pid() <= 0 {
		t.Fatalf("Pid() = %d", p.Pid())
	}
	if _, err := p.Write([]byte("echo hel''lo\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	readUntil(t, p, "hello", 5*time.Second)
}

func TestSpawn_InitialSize(t *testing.T) {
	p := spawnSh(t, 100, 40)
	cols, rows, err := p.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if cols != 100 || rows != 40 {
		t.Errorf("Size() = %dx%d, want 100x40", cols, rows)
	}
}

func TestProcess_ResizeObservedByChild(t *testing.T) {
	p := spawnSh(t, 80, 24)
	if err := p.Resize(132, 50); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	p.Write([]byte("stty size\n"))
	readUntil(t, p, "50 132", 5*time.Second)
}

func TestProcess_ReadDeadline(t *testing.T) {
	p := spawnSh(t, 80, 24)
	readUntil(t, p, "$", 5*time.Second)

	p.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := p.Read(make([]byte, 64))
	if err == nil {
		return
	}
	if !IsWouldBlock(err) {
		t.Errorf("Read() error = %v, want a would-block error", err)
	}
}

func TestProcess_ExitCode(t *testing.T) {
	p := spawnSh(t, 80, 24)
	p.Write([]byte("exit 3\n"))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
	code, ok := p.ExitCode()
	if !ok || code != 3 {
		t.Errorf("ExitCode() = %d, %v; want 3, true", code, ok)
	}
}

func TestProcess_ReadAfterExitIsClosed(t *testing.T) {
	p := spawnSh(t, 80, 24)
	p.Write([]byte("exit\n"))
	<-p.Done()

	buf := make([]byte, 4096)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err := p.Read(buf)
		if err == nil || IsWouldBlock(err) {
			continue
		}
		if !IsClosed(err) {
			t.Fatalf("Read() error = %v, want EOF/EIO", err)
		}
		return
	}
	t.Fatal("master never reported closed")
}

func TestProcess_Terminate(t *testing.T) {
	p := spawnSh(t, 80, 24)
	if err := p.Terminate(100 * time.Millisecond); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if !p.Exited() {
		t.Error("Exited() = false after Terminate")
	}
	if err := p.Terminate(100 * time.Millisecond); err != nil {
		t.Errorf("second Terminate() error = %v", err)
	}
}

func TestProcess_CloseMasterTwice(t *testing.T) {
	p := spawnSh(t, 80, 24)
	if err := p.CloseMaster(); err != nil {
		t.Fatalf("CloseMaster() error = %v", err)
	}
	if err := p.CloseMaster(); err != nil {
		t.Errorf("second CloseMaster() error = %v", err)
	}
	if _, err := p.Write([]byte("x")); !IsClosed(err) {
		t.Errorf("Write() after close error = %v", err)
	}
}
