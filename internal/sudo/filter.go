package sudo

import "strings"

var promptMarkers = []string{"Password:", "Sorry, try again", "sudo:"}

// FilterDiagnostics removes password prompts, sudo's own messages and blank
// lines from stderr. Stdout must never be passed through it.
func FilterDiagnostics(stderr string) string {
	var kept []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || containsAny(line, promptMarkers) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
