// Package prompt recognises a program waiting for keyboard input at the end
// of a session's output.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a pending prompt.
type Kind string

const (
	KindPassword     Kind = "password"
	KindConfirmation Kind = "confirmation"
	KindPager        Kind = "pager"
	KindText         Kind = "text"
)

// ParseKind maps a config value to a Kind. Unknown values are KindText.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(s)); k {
	case KindPassword, KindConfirmation, KindPager:
		return k
	default:
		return KindText
	}
}

// Pattern matches the tail of the output. Mask hides typed input from
// recordings.
type Pattern struct {
	Name      string
	Regex     *regexp.Regexp
	Kind      Kind
	Mask      bool
	Suggested string
}

// Detection is a prompt found at the end of the output.
type Detection struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Mask      bool   `json:"mask"`
	Text      string `json:"text"`
	Suggested string `json:"suggested,omitempty"`
	Hint      string `json:"hint"`
}

var builtin = []Pattern{
	{Name: "sudo_password", Regex: regexp.MustCompile(`(?i)\[sudo\] password for [^:]+:\s*$`), Kind: KindPassword, Mask: true},
	{Name: "ssh_passphrase", Regex: regexp.MustCompile(`(?i)enter passphrase for (key )?'[^']+':\s*$`), Kind: KindPassword, Mask: true},
	{Name: "git_password", Regex: regexp.MustCompile(`(?i)password for '[^']+':\s*$`), Kind: KindPassword, Mask: true},
	{Name: "password", Regex: regexp.MustCompile(`(?i)(password|passphrase)( for [^:]+)?:\s*$`), Kind: KindPassword, Mask: true},
	{Name: "ssh_host_key", Regex: regexp.MustCompile(`(?i)continue connecting \(yes/no(/\[fingerprint\])?\)\?\s*$`), Kind: KindConfirmation, Suggested: "yes"},
	{Name: "apt_continue", Regex: regexp.MustCompile(`(?i)do you want to continue\? \[Y/n\]\s*$`), Kind: KindConfirmation, Suggested: "Y"},
	{Name: "yum_ok", Regex: regexp.MustCompile(`(?i)is this ok \[y/d/N\]:\s*$`), Kind: KindConfirmation, Suggested: "y"},
	{Name: "yes_no", Regex: regexp.MustCompile(`(?i)[\[(]yes/no[\])]\??\s*$`), Kind: KindConfirmation},
	{Name: "y_n", Regex: regexp.MustCompile(`(?i)[\[(]y/n[\])]\??:?\s*$`), Kind: KindConfirmation},
	{Name: "less", Regex: regexp.MustCompile(`\(END\)\s*$`), Kind: KindPager, Suggested: "q"},
	{Name: "more", Regex: regexp.MustCompile(`--More--(\(\d+%\))?\s*$`), Kind: KindPager, Suggested: "q"},
	{Name: "press_enter", Regex: regexp.MustCompile(`(?i)press (enter|return|any key) to continue\.*\s*$`), Kind: KindText, Suggested: "\n"},
}

// ansi matches CSI and OSC escape sequences.
var ansi = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)

// Detector holds the patterns checked by Detect. Custom patterns take
// precedence over the built-in ones.
type Detector struct {
	patterns []Pattern
}

// NewDetector returns a detector with custom followed by the built-ins.
func NewDetector(custom ...Pattern) *Detector {
	ps := make([]Pattern, 0, len(custom)+len(builtin))
	ps = append(ps, custom...)
	ps = append(ps, builtin...)
	return &Detector{patterns: ps}
}

// Compile builds a Pattern from config values.
func Compile(name, expr, kind string, mask bool) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("prompt %q: %w", name, err)
	}
	k := ParseKind(kind)
	return Pattern{Name: name, Regex: re, Kind: k, Mask: mask || k == KindPassword}, nil
}

// Detect inspects the last line of tail. It returns nil when the output
// does not end in a known prompt.
func (d *Detector) Detect(tail string) *Detection {
	line := lastLine(ansi.ReplaceAllString(tail, ""))
	if strings.TrimSpace(line) == "" {
		return nil
	}
	for _, p := range d.patterns {
		loc := p.Regex.FindStringIndex(line)
		if loc == nil {
			continue
		}
		return &Detection{
			Name:      p.Name,
			Kind:      p.Kind,
			Mask:      p.Mask,
			Text:      strings.TrimSpace(line[loc[0]:loc[1]]),
			Suggested: p.Suggested,
			Hint:      hint(p),
		}
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func hint(p Pattern) string {
	switch p.Kind {
	case KindPassword:
		return "Password required. Write it followed by a newline; it is masked in recordings."
	case KindConfirmation:
		if p.Suggested != "" {
			return "Confirmation required. Suggested response: " + p.Suggested
		}
		return "Confirmation required."
	case KindPager:
		return "Pager is waiting. Write 'q' to quit."
	default:
		return "Input required."
	}
}
