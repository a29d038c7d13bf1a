package security

import (
	"fmt"
	"regexp"
	"sync"
)

// CommandFilter decides whether a privileged command may run. Blocklist
// matches always win; a non-empty allowlist must also match.
type CommandFilter struct {
	mu        sync.RWMutex
	blocklist []*regexp.Regexp
	allowlist []*regexp.Regexp
}

// NewCommandFilter compiles the patterns. A nil blocklist means
// DefaultBlocklist; pass an empty slice to block nothing.
func NewCommandFilter(blocklist, allowlist []string) (*CommandFilter, error) {
	cf := &CommandFilter{}
	if err := cf.Update(blocklist, allowlist); err != nil {
		return nil, err
	}
	return cf, nil
}

// Update recompiles both lists; on error the filter is unchanged.
func (cf *CommandFilter) Update(blocklist, allowlist []string) error {
	if blocklist == nil {
		blocklist = DefaultBlocklist()
	}
	block, err := compileAll("blocklist", blocklist)
	if err != nil {
		return err
	}
	allow, err := compileAll("allowlist", allowlist)
	if err != nil {
		return err
	}

	cf.mu.Lock()
	cf.blocklist, cf.allowlist = block, allow
	cf.mu.Unlock()
	return nil
}

func compileAll(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// IsAllowed returns (false, reason) for a rejected command.
func (cf *CommandFilter) IsAllowed(command string) (bool, string) {
	cf.mu.RLock()
	defer cf.mu.RUnlock()

	for _, re := range cf.blocklist {
		if re.MatchString(command) {
			return false, fmt.Sprintf("command blocked by pattern: %s", re.String())
		}
	}
	if len(cf.allowlist) == 0 {
		return true, ""
	}
	for _, re := range cf.allowlist {
		if re.MatchString(command) {
			return true, ""
		}
	}
	return false, "command not in allowlist"
}

// DefaultBlocklist returns patterns for commands that destroy the host.
func DefaultBlocklist() []string {
	return []string{
		`rm\s+-rf\s+/\s*$`,
		`rm\s+-rf\s+/\*`,
		`mkfs\.`,
		`dd\s+.*of=/dev/[sh]d`,
		`:\s*\(\s*\)\s*\{\s*:\s*\|`,
		`>\s*/dev/[sh]d`,
	}
}
