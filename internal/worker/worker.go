// Package worker encodes the contract with the external analyzer CLI: how
// it is invoked, how long each analysis kind may run, and which credentials
// are forwarded into its environment.
//
// The worker is expected to exit 0 on success and write a JSON artifact to
// the requested output file. On an internal timeout it prints a sentinel
// line (see artifact.TimeoutSentinel) before exiting non-zero. Any other
// non-zero exit is a failure with diagnostics on stderr.
package worker

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the depth of analysis the worker performs.
type Kind string

const (
	// KindQuick is a fast metadata-only pass.
	KindQuick Kind = "quick"

	// KindFull is the standard analysis.
	KindFull Kind = "full"

	// KindEnhanced adds web research and test generation.
	KindEnhanced Kind = "enhanced"
)

// Kinds lists the supported analysis kinds.
var Kinds = []Kind{KindQuick, KindFull, KindEnhanced}

// deadlines fixes the maximum wall-clock runtime per kind. Set once at job
// start, never extended.
var deadlines = map[Kind]time.Duration{
	KindQuick:    5 * time.Minute,
	KindFull:     15 * time.Minute,
	KindEnhanced: 30 * time.Minute,
}

// subcommands maps a Kind to the worker CLI subcommand that implements it.
var subcommands = map[Kind]string{
	KindQuick:    "quick",
	KindFull:     "analyze",
	KindEnhanced: "enhanced",
}

// ParseKind validates a client-supplied kind string.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", fmt.Errorf("unknown analysis kind %q", s)
}

// Deadline returns the execution deadline for the kind.
func (k Kind) Deadline() time.Duration {
	if d, ok := deadlines[k]; ok {
		return d
	}

	return deadlines[KindFull]
}

// Argv builds the literal argument vector to invoke the analyzer worker.
// User-controlled strings are only ever passed as discrete arguments, never
// interpolated into a shell string.
func Argv(bin, subject string, kind Kind, focus, outputFile string) []string {
	argv := []string{
		bin,
		subcommands[kind],
		subject,
		"--format", "json",
		"--output-file", outputFile,
	}

	if focus != "" {
		argv = append(argv, "--focus", focus)
	}

	return argv
}

// passthroughEnv lists the variables forwarded from the orchestrator's
// environment into the worker's. Credentials travel here, never in argv.
var passthroughEnv = []string{
	"PATH",
	"HOME",
	"GITHUB_TOKEN",
	"ANTHROPIC_API_KEY",
}

// Environ filters base (typically os.Environ()) down to the passthrough
// allowlist.
func Environ(base []string) []string {
	env := make([]string, 0, len(passthroughEnv))

	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		for _, allowed := range passthroughEnv {
			if name == allowed {
				env = append(env, kv)
				break
			}
		}
	}

	return env
}
