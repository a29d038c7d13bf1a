package sudo

import "testing"

func TestRequiresPrivilege(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"ls", false},
		{"echo hello", false},
		{"", false},
		{"sudo ls", true},
		{"  sudo ls", true},
		{"systemctl start x", true},
		{"apt install package", true},
		{"/usr/sbin/iptables -L", true},
		{"chown root:root file", true},
		{"docker ps", true},
		{"crontab -e", true},
		{"npm install -g typescript", true},
		{"npm install lodash", false},
		{"pip install requests", true},
		{"gem install rails", true},
		{"DEBIAN_FRONTEND=noninteractive apt-get upgrade", true},
		{"cat /etc/hosts | grep localhost", false},
		{"make && ufw allow 22", true},
		{"grep docker notes.txt", false},
		{"echo systemctl", false},
	}
	for _, tt := range tests {
		if got := RequiresPrivilege(tt.command); got != tt.want {
			t.Errorf("RequiresPrivilege(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestStripSudoPrefix(t *testing.T) {
	tests := map[string]string{
		"sudo apt update":  "apt update",
		"  sudo  ls":       "ls",
		"ls":               "ls",
		"sudoedit /etc/x":  "sudoedit /etc/x",
		"echo sudo ls":     "echo sudo ls",
	}
	for in, want := range tests {
		if got := StripSudoPrefix(in); got != want {
			t.Errorf("StripSudoPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
