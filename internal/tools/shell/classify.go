// Package shell provides the exec tool (classified, sandboxed command
// execution) and the jobs tool for managing background processes.
package shell

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Timeouts per command class. Explicit timeouts are capped at MaxTimeout.
const (
	QuickTimeout    = 30 * time.Second
	StandardTimeout = 120 * time.Second
	MaxTimeout      = 600 * time.Second
)

// MaxOutputBytes bounds captured command output (100 KiB). Longer output
// is head/tail truncated.
const MaxOutputBytes = 100 << 10

// Class is the execution classification of a command.
type Class int

const (
	// ClassQuick commands get the short timeout.
	ClassQuick Class = iota
	// ClassStandard commands get the default timeout.
	ClassStandard
	// ClassBackground commands auto-detach to a background job.
	ClassBackground
)

func (c Class) String() string {
	switch c {
	case ClassQuick:
		return "quick"
	case ClassBackground:
		return "background"
	default:
		return "standard"
	}
}

var quickCommands = map[string]bool{
	"ls": true, "cat": true, "pwd": true, "echo": true, "which": true,
	"type": true, "file": true, "stat": true, "test": true, "cd": true,
}

var longRunningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bgit\s+clone\b`),
	regexp.MustCompile(`\b(npm|yarn|pnpm)\s+(install|ci)\b`),
	regexp.MustCompile(`\bpip3?\s+install\b`),
	regexp.MustCompile(`\bapt(-get)?\s+(install|upgrade|dist-upgrade)\b`),
	regexp.MustCompile(`\bbrew\s+(install|upgrade)\b`),
	regexp.MustCompile(`\bcargo\s+(build|install)\b`),
	regexp.MustCompile(`\bmake(\s|$)`),
	regexp.MustCompile(`&\s*$`),
}

type dangerPattern struct {
	re     *regexp.Regexp
	reason string
}

var dangerPatterns = []dangerPattern{
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]+\s+)+(/|/\*)(\s|$)`), "recursive delete of filesystem root"},
	{regexp.MustCompile(`\brm\s+(-[a-zA-Z]+\s+)+(~|\$HOME)(/\*)?(\s|$)`), "recursive delete of home directory"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\b`), "filesystem format"},
	{regexp.MustCompile(`\bdd\b[^|]*\bof=/dev/`), "raw write to a device"},
	{regexp.MustCompile(`>\s*/dev/(sd|nvme|hd|vd)`), "raw write to a device"},
	// Anchored to command position so mentions in arguments stay legal.
	{regexp.MustCompile(`(^|[;&|])\s*(sudo\s+)?(shutdown|reboot|poweroff|halt)\b`), "system shutdown"},
	{regexp.MustCompile(`(^|[;&|])\s*(sudo\s+)?init\s+0\b`), "system shutdown"},
	{regexp.MustCompile(`:\s*\(\s*\)\s*\{[^}]*\|[^}]*&[^}]*\}`), "fork bomb"},
}

// CheckDangerous reports whether the command matches the refusal list.
func CheckDangerous(command string) (string, bool) {
	for _, p := range dangerPatterns {
		if p.re.MatchString(command) {
			return p.reason, true
		}
	}
	return "", false
}

// Classify buckets a command into quick, standard, or background.
func Classify(command string) Class {
	trimmed := strings.TrimSpace(command)
	for _, p := range longRunningPatterns {
		if p.MatchString(trimmed) {
			return ClassBackground
		}
	}
	fields := strings.Fields(trimmed)
	if len(fields) > 0 && quickCommands[fields[0]] {
		return ClassQuick
	}
	return ClassStandard
}

// EffectiveTimeout resolves the run deadline from the class and an
// optional explicit request.
func EffectiveTimeout(class Class, requested time.Duration) time.Duration {
	if requested > 0 {
		if requested > MaxTimeout {
			return MaxTimeout
		}
		return requested
	}
	if class == ClassQuick {
		return QuickTimeout
	}
	return StandardTimeout
}

// TruncateOutput keeps the head and tail of oversized output with a
// marker noting how many bytes were dropped.
func TruncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := max / 2
	dropped := len(s) - 2*half
	return fmt.Sprintf("%s\n... [%d bytes truncated] ...\n%s", s[:half], dropped, s[len(s)-half:])
}
