package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := New(false)
	m.SessionCreated()
	m.SessionCreated()
	m.SessionRemoved("killed")
	m.Output(10)
	m.Input(3)
	m.Sudo("success", 250*time.Millisecond)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		"ptyd_sessions_active 1",
		"ptyd_sessions_created_total 2",
		`ptyd_sessions_removed_total{reason="killed"} 1`,
		"ptyd_output_bytes_total 10",
		"ptyd_input_bytes_total 3",
		`ptyd_sudo_commands_total{result="success"} 1`,
		"ptyd_sudo_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered without withRuntime")
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := New(true), New(true)
	a.SessionCreated()
	if body := scrape(t, b.Handler()); !strings.Contains(body, "ptyd_sessions_created_total 0") {
		t.Error("registries are shared between instances")
	}
	if body := scrape(t, a.Handler()); !strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors missing")
	}
}

func TestMetrics_ServeListener(t *testing.T) {
	m := New(false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.ServeListener(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ptyd_sessions_active") {
		t.Errorf("body = %s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
