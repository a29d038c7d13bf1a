package security

import (
	"strings"
	"testing"
)

func TestCommandFilter_DefaultBlocklist(t *testing.T) {
	cf, err := NewCommandFilter(nil, nil)
	if err != nil {
		t.Fatalf("NewCommandFilter() error = %v", err)
	}
	tests := []struct {
		cmd     string
		allowed bool
	}{
		{"apt-get install htop", true},
		{"systemctl restart nginx", true},
		{"rm -rf /", false},
		{"rm -rf /*", false},
		{"mkfs.ext4 /dev/sdb1", false},
		{"dd if=/dev/zero of=/dev/sda bs=1M", false},
		{":(){ :|:& };:", false},
		{"rm -rf /tmp/build", true},
	}
	for _, tt := range tests {
		allowed, reason := cf.IsAllowed(tt.cmd)
		if allowed != tt.allowed {
			t.Errorf("IsAllowed(%q) = %v (%s), want %v", tt.cmd, allowed, reason, tt.allowed)
		}
		if !allowed && !strings.Contains(reason, "blocked") {
			t.Errorf("IsAllowed(%q) reason = %q", tt.cmd, reason)
		}
	}
}

func TestCommandFilter_EmptyBlocklist(t *testing.T) {
	cf, _ := NewCommandFilter([]string{}, nil)
	if ok, _ := cf.IsAllowed("rm -rf /"); !ok {
		t.Error("an explicit empty blocklist should block nothing")
	}
}

func TestCommandFilter_Allowlist(t *testing.T) {
	cf, err := NewCommandFilter([]string{}, []string{`^apt(-get)?\s`, `^systemctl\s+status`})
	if err != nil {
		t.Fatalf("NewCommandFilter() error = %v", err)
	}
	if ok, _ := cf.IsAllowed("apt-get update"); !ok {
		t.Error("allowlisted command rejected")
	}
	ok, reason := cf.IsAllowed("systemctl stop sshd")
	if ok || reason != "command not in allowlist" {
		t.Errorf("IsAllowed() = %v, %q", ok, reason)
	}
}

func TestCommandFilter_InvalidRegex(t *testing.T) {
	if _, err := NewCommandFilter([]string{"("}, nil); err == nil {
		t.Error("expected error for invalid blocklist pattern")
	}
	cf, _ := NewCommandFilter(nil, nil)
	if err := cf.Update(nil, []string{"["}); err == nil {
		t.Fatal("expected error for invalid allowlist pattern")
	}
	if ok, _ := cf.IsAllowed("ls"); !ok {
		t.Error("failed Update changed the filter")
	}
}
