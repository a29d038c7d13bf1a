// Package sudo runs privileged commands by piping a password into sudo and
// classifies commands that will need one.
package sudo

import (
	"path"
	"regexp"
	"strings"
)

// privileged lists commands that need root on a typical host.
var privileged = map[string]bool{
	// package managers
	"apt": true, "apt-get": true, "dpkg": true, "yum": true, "dnf": true,
	"pacman": true, "yay": true, "zypper": true, "snap": true,
	// service managers
	"systemctl": true, "service": true,
	// filesystems
	"mount": true, "umount": true,
	// permissions and ownership
	"chmod": true, "chown": true, "chgrp": true,
	// users and groups
	"useradd": true, "userdel": true, "usermod": true,
	"groupadd": true, "groupdel": true, "visudo": true, "passwd": true,
	// firewalls
	"iptables": true, "ip6tables": true, "nft": true, "ufw": true, "firewall-cmd": true,
	// containers
	"docker": true, "docker-compose": true, "podman": true,
	"crontab": true,
}

// privilegedPrefixes are multi-word forms where only some subcommands need root.
var privilegedPrefixes = []string{
	"npm install -g",
	"npm install --global",
	"npm i -g",
	"pip install",
	"pip3 install",
	"gem install",
}

var segmentSep = regexp.MustCompile(`&&|\|\||[;|]`)

// RequiresPrivilege reports whether command starts with sudo or runs a
// command from the privileged table in any of its pipeline or list segments.
func RequiresPrivilege(command string) bool {
	for _, seg := range segmentSep.Split(command, -1) {
		fields := strings.Fields(seg)
		fields = skipAssignments(fields)
		if len(fields) == 0 {
			continue
		}
		base := path.Base(fields[0])
		if base == "sudo" || privileged[base] {
			return true
		}
		joined := strings.Join(append([]string{base}, fields[1:]...), " ")
		for _, p := range privilegedPrefixes {
			if joined == p || strings.HasPrefix(joined, p+" ") {
				return true
			}
		}
	}
	return false
}

// skipAssignments drops leading VAR=value words.
func skipAssignments(fields []string) []string {
	for len(fields) > 0 {
		name, _, ok := strings.Cut(fields[0], "=")
		if !ok || name == "" || strings.ContainsAny(name, "/.-") {
			break
		}
		fields = fields[1:]
	}
	return fields
}

// StripSudoPrefix removes one leading "sudo " from command.
func StripSudoPrefix(command string) string {
	trimmed := strings.TrimLeft(command, " \t")
	if rest, ok := strings.CutPrefix(trimmed, "sudo "); ok {
		return strings.TrimLeft(rest, " \t")
	}
	return command
}
