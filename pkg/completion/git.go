package completion

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// checkGitCommit shells out to git log the same way
// completion.rs does, looking for a single commit made in projectRoot
// since the session's last recorded activity.
func checkGitCommit(ctx context.Context, projectRoot string, since time.Time) (hash string, found bool) {
	if projectRoot == "" {
		return "", false
	}

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", "log",
		"--since", "@"+strconv.FormatInt(since.Unix(), 10),
		"--format=%H", "-1")
	cmd.Dir = projectRoot

	out, err := cmd.Output()
	if err != nil {
		return "", false
	}

	hash = strings.TrimSpace(string(out))
	if hash == "" {
		return "", false
	}
	return hash, true
}
