package sudo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeSudo mimics `sudo -S -p "" sh -c <cmd>`: it reads one line of
// password from stdin, accepts only "secret", and then runs the command.
const fakeSudo = `#!/bin/sh
read pw
printf 'Password:\n' >&2
if [ "$pw" != "secret" ]; then
	echo "Sorry, try again." >&2
	echo "sudo: 1 incorrect password attempt" >&2
	exit 1
fi
shift 3
exec "$@"
`

func writeFakeSudo(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "sudo")
	if err := os.WriteFile(path, []byte(fakeSudo), 0o755); err != nil {
		t.Fatalf("write fake sudo: %v", err)
	}
	return path
}

func TestExecutor_Success(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 5*time.Second)

	res, err := e.Execute(context.Background(), Request{
		SessionID: "s1",
		Command:   "sudo echo privileged; echo warn >&2",
		Password:  []byte("secret"),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("Result = %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "privileged" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if res.Stderr != "warn" {
		t.Errorf("Stderr = %q, want only the command's own diagnostics", res.Stderr)
	}
	if strings.Contains(res.Combined(), "Password:") {
		t.Errorf("Combined() leaks the prompt: %q", res.Combined())
	}
}

func TestExecutor_WrongPassword(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 5*time.Second)

	res, err := e.Execute(context.Background(), Request{Command: "id", Password: []byte("nope")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success || res.ExitCode != 1 {
		t.Errorf("Result = %+v", res)
	}
	if res.ErrorType != ErrorWrongPassword {
		t.Errorf("ErrorType = %v, want wrong_password", res.ErrorType)
	}
	if res.Stderr != "" {
		t.Errorf("Stderr = %q, want prompts filtered out", res.Stderr)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 200*time.Millisecond)

	start := time.Now()
	res, err := e.Execute(context.Background(), Request{Command: "sleep 5", Password: []byte("secret")})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
	if res == nil || !res.TimedOut || res.Success {
		t.Errorf("Result = %+v, want TimedOut", res)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Execute took %v; process group was not killed", elapsed)
	}
}

func TestExecutor_NonZeroExit(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 5*time.Second)
	res, err := e.Execute(context.Background(), Request{Command: "exit 7", Password: []byte("secret")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Success || res.ExitCode != 7 || res.ErrorType != ErrorNone {
		t.Errorf("Result = %+v", res)
	}
}

func TestExecutor_WorkingDirectory(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 5*time.Second)
	dir := t.TempDir()
	res, err := e.Execute(context.Background(), Request{Command: "pwd", Dir: dir, Password: []byte("secret")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(res.Stdout))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestExecutor_EmptyCommand(t *testing.T) {
	e := NewExecutor("sudo", time.Second)
	if _, err := e.Execute(context.Background(), Request{Command: "sudo   "}); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Execute() error = %v, want ErrEmptyCommand", err)
	}
}

func TestExecutor_MissingBinary(t *testing.T) {
	e := NewExecutor("/nonexistent/sudo", time.Second)
	if _, err := e.Execute(context.Background(), Request{Command: "ls", Password: []byte("x")}); err == nil {
		t.Error("Execute() with a missing binary should fail")
	}
}

func TestExecutor_KeepsCallerPassword(t *testing.T) {
	e := NewExecutor(writeFakeSudo(t), 5*time.Second)
	pw := []byte("secret")
	if _, err := e.Execute(context.Background(), Request{Command: "true", Password: pw}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(pw) != "secret" {
		t.Errorf("caller password modified: %q", pw)
	}
}

func TestResult_Combined(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Stdout: "out\n"}, "out\n"},
		{Result{Stderr: "err"}, "err"},
		{Result{Stdout: "out\n", Stderr: "err"}, "out\nerr"},
	}
	for _, tt := range tests {
		if got := tt.res.Combined(); got != tt.want {
			t.Errorf("Combined() = %q, want %q", got, tt.want)
		}
	}
}
