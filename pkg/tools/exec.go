package tools

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"time"
)

// dangerousPatterns is the fixed deny-list from §4.F, matched against
// the literal command string. It does not expand shells, so
// `sh -c 'rm -rf /'` is not caught — a documented limitation, not a
// bug (§9 Open Questions: kept as specified, intent not guessed).
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/(\s|$)`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`mkfs`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`curl[^|]*\|\s*sh`),
	regexp.MustCompile(`wget[^|]*\|\s*sh`),
}

const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 300 * time.Second
)

func isDangerousCommand(cmd string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}

// executeCommandHandler spawns a subprocess under the project root
// with a bounded timeout (§4.F: default 30s, capped at 300s). Before
// spawn, the literal command is checked against the deny-list; a match
// returns a structured "blocked" result without spawning.
func executeCommandHandler(ctx context.Context, callCtx CallContext, args map[string]any) Result {
	command := argString(args, "command")
	if command == "" {
		return Result{Success: false, Error: "command is required"}
	}
	if isDangerousCommand(command) {
		return Result{Success: false, Error: "blocked: command matches a denied pattern", Output: map[string]any{"blocked": true}}
	}

	timeout := time.Duration(argInt(args, "timeout_seconds", 30)) * time.Second
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	if timeout > maxCommandTimeout {
		timeout = maxCommandTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if callCtx.ProjectRoot != "" {
		cmd.Dir = callCtx.ProjectRoot
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			Success: false,
			Error:   "command timed out",
			Output: map[string]any{
				"timeout": true,
				"stdout":  stdout.String(),
				"stderr":  stderr.String(),
			},
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{Success: false, Error: err.Error()}
		}
	}

	return Result{
		Success: exitCode == 0,
		Output: map[string]any{
			"exit_code": exitCode,
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"command":   command,
		},
	}
}
