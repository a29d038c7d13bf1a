package sudo

import (
	"path"
	"regexp"
	"slices"
	"strings"
)

// Prediction is Detector's guess about whether a command needs sudo.
type Prediction struct {
	NeedsSudo   bool    `json:"needs_sudo"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	Alternative string  `json:"alternative,omitempty"`
}

type rule struct {
	re          *regexp.Regexp
	confidence  float64
	reason      string
	alternative string
}

// Detector explains sudo requirements with a confidence and, where one
// exists, an unprivileged alternative. RequiresPrivilege is the plain
// yes/no table; Detector adds the reasoning on top of it.
type Detector struct {
	rules      []rule
	systemDirs []string
	writers    []string
	safe       []string
	hints      map[string]string
}

// NewDetector creates a detector with the built-in rules.
func NewDetector() *Detector {
	return &Detector{
		rules: []rule{
			{regexp.MustCompile(`^systemctl\s+(start|stop|restart|enable|disable|reload|mask|unmask)\b`), 0.95, "systemd unit management requires root", ""},
			{regexp.MustCompile(`^service\s+\S+\s+(start|stop|restart|reload)\b`), 0.95, "service management requires root", ""},
			{regexp.MustCompile(`^apt(-get)?\s+(install|remove|purge|update|upgrade|dist-upgrade|autoremove)\b`), 0.9, "package installation or removal requires root", ""},
			{regexp.MustCompile(`^(yum|dnf|zypper)\s+(install|remove|update|upgrade)\b`), 0.9, "package installation or removal requires root", ""},
			{regexp.MustCompile(`^pacman\s+-S`), 0.9, "package installation requires root", ""},
			{regexp.MustCompile(`^npm\s+(install|i)\s+(-g|--global)\b`), 0.8, "global npm installs write to a system prefix", "npm --prefix ~/.local or npx"},
			{regexp.MustCompile(`^pip3?\s+install\b`), 0.7, "system-wide pip installs write to site-packages", "pip install --user or a virtualenv"},
			{regexp.MustCompile(`^gem\s+install\b`), 0.7, "system gem installs write to a root-owned directory", "gem install --user-install"},
		},
		systemDirs: []string{"/etc/", "/usr/", "/var/", "/opt/", "/root/", "/sys/", "/proc/", "/boot/", "/lib/", "/sbin/"},
		writers:    []string{"cp", "mv", "rm", "mkdir", "rmdir", "touch", "tee", "dd", "ln", "install", "chmod", "chown", "chgrp"},
		safe: []string{
			"ls", "cat", "less", "more", "head", "tail", "grep", "find", "which", "type",
			"echo", "printf", "env", "pwd", "cd", "date", "uptime", "whoami", "id",
			"ps", "top", "htop", "free", "df", "du", "git", "node", "python", "python3",
			"curl", "wget", "ssh", "vim", "nano", "man",
		},
		hints: map[string]string{
			"docker": "add the user to the docker group: sudo usermod -aG docker $USER",
			"podman": "run podman rootless",
		},
	}
}

// Predict analyzes command. Commands that already start with sudo need no
// further escalation.
func (d *Detector) Predict(command string) *Prediction {
	command = strings.TrimSpace(command)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return &Prediction{Confidence: 1, Reason: "empty command"}
	}
	if fields[0] == "sudo" {
		return &Prediction{Confidence: 1, Reason: "command already uses sudo"}
	}

	base := path.Base(fields[0])
	normalized := strings.Join(append([]string{base}, fields[1:]...), " ")

	for _, r := range d.rules {
		if r.re.MatchString(normalized) {
			if base == "pip" || base == "pip3" {
				if slices.Contains(fields, "--user") {
					return &Prediction{Confidence: 0.9, Reason: "pip --user installs into the home directory"}
				}
			}
			return &Prediction{NeedsSudo: true, Confidence: r.confidence, Reason: r.reason, Alternative: r.alternative}
		}
	}

	if slices.Contains(d.writers, base) {
		for _, arg := range fields[1:] {
			for _, dir := range d.systemDirs {
				if strings.HasPrefix(arg, dir) {
					return &Prediction{NeedsSudo: true, Confidence: 0.85, Reason: "writes under " + dir}
				}
			}
		}
	}

	if privileged[base] {
		return &Prediction{
			NeedsSudo:   true,
			Confidence:  0.8,
			Reason:      "'" + base + "' usually requires root",
			Alternative: d.hints[base],
		}
	}
	if RequiresPrivilege(command) {
		return &Prediction{NeedsSudo: true, Confidence: 0.7, Reason: "a later pipeline stage needs root"}
	}
	if slices.Contains(d.safe, base) {
		return &Prediction{Confidence: 0.9, Reason: "'" + base + "' runs unprivileged"}
	}
	return &Prediction{Confidence: 0.6, Reason: "no privilege indicators"}
}

var promptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\[sudo\]\s+password\s+for\s+\S+:`),
	regexp.MustCompile(`(?im)^Password:\s*$`),
	regexp.MustCompile(`(?im)password\s+for\s+\S+:\s*$`),
}

// IsSudoPrompt reports whether output ends in or contains a sudo password prompt.
func IsSudoPrompt(output string) bool {
	for _, re := range promptPatterns {
		if re.MatchString(output) {
			return true
		}
	}
	return false
}

// ErrorType classifies why a sudo invocation failed.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorWrongPassword
	ErrorNotInSudoers
	ErrorNotAllowed
	ErrorPasswordRequired
)

func (t ErrorType) String() string {
	switch t {
	case ErrorWrongPassword:
		return "wrong_password"
	case ErrorNotInSudoers:
		return "not_in_sudoers"
	case ErrorNotAllowed:
		return "not_allowed"
	case ErrorPasswordRequired:
		return "password_required"
	default:
		return "none"
	}
}

// ParseSudoError classifies raw sudo stderr. It must see the unfiltered
// text since FilterDiagnostics drops exactly the lines it looks for.
func ParseSudoError(stderr string) ErrorType {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "incorrect password"), strings.Contains(s, "sorry, try again"):
		return ErrorWrongPassword
	case strings.Contains(s, "is not in the sudoers file"):
		return ErrorNotInSudoers
	case strings.Contains(s, "is not allowed to execute"):
		return ErrorNotAllowed
	case strings.Contains(s, "a password is required"), strings.Contains(s, "no password was provided"):
		return ErrorPasswordRequired
	}
	return ErrorNone
}

// SuggestFix returns a short remediation hint for t.
func SuggestFix(t ErrorType) string {
	switch t {
	case ErrorWrongPassword:
		return "The password is the invoking user's own password, not root's."
	case ErrorNotInSudoers:
		return "Ask an administrator to add the user to the sudo or wheel group."
	case ErrorNotAllowed:
		return "The sudoers policy does not allow this command for the user."
	case ErrorPasswordRequired:
		return "Supply the sudo password."
	}
	return ""
}
