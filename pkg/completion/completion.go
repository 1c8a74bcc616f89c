// Package completion implements component H, the session completion
// detector: the background watcher that decides when a running codex
// session is actually done.
//
// Grounded on original_source/backend/src/session/completion.rs for the
// signal set and the default thresholds (600s inactivity, 30s tick,
// the completion-phrase list), adapted to forge's sessions table and
// arbor-based logging in the teacher's own style.
package completion

import (
	"strings"
	"time"
)

// Reason is one of the terminal signals that can close out a codex
// session.
type Reason string

const (
	ReasonToolLoopTerminated     Reason = "tool_loop_terminated"
	ReasonGitCommitDetected      Reason = "git_commit_detected"
	ReasonUserExplicitCompletion Reason = "user_explicit_completion"
	ReasonInactivityTimeout      Reason = "inactivity_timeout"
	ReasonMaxIterationsReached   Reason = "max_iterations_reached"
	ReasonUserCancelled          Reason = "user_cancelled"
	ReasonFailed                 Reason = "failed"
)

// IsSuccess reports whether a reason represents a natural, successful
// close rather than a timeout, cancellation, or failure.
func (r Reason) IsSuccess() bool {
	switch r {
	case ReasonToolLoopTerminated, ReasonGitCommitDetected, ReasonUserExplicitCompletion:
		return true
	default:
		return false
	}
}

// Signal is one detected completion event for a session, carrying
// whatever detail the reason needs (commit hash, trigger phrase, idle
// seconds, iteration count).
type Signal struct {
	SessionID string
	Reason    Reason
	Detail    string
	Timestamp time.Time
}

// Config tunes the detector. The zero value is not usable; build one
// with DefaultConfig and override fields as needed.
type Config struct {
	InactivityTimeout time.Duration
	MaxIterations     int
	CompletionPhrases []string
	DetectGitCommits  bool
	TickInterval      time.Duration
}

// DefaultConfig mirrors completion.rs's CompletionConfig::default.
func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 600 * time.Second,
		MaxIterations:     1000,
		CompletionPhrases: []string{"done", "finished", "complete", "all done", "task complete"},
		DetectGitCommits:  true,
		TickInterval:      30 * time.Second,
	}
}

// CheckExplicitCompletion reports the first configured phrase found in
// text, case-insensitively, or "" if none matched.
func CheckExplicitCompletion(cfg Config, text string) string {
	lower := strings.ToLower(text)
	for _, phrase := range cfg.CompletionPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return phrase
		}
	}
	return ""
}

// CheckMaxIterations reports whether an iteration count has reached the
// configured ceiling.
func CheckMaxIterations(cfg Config, iteration int) bool {
	return cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations
}

// CheckInactivityTimeout reports the idle duration, in whole seconds,
// once a session has been quiet for at least the configured timeout.
// A zero InactivityTimeout disables the check.
func CheckInactivityTimeout(cfg Config, lastActive, now time.Time) (idleSeconds int64, timedOut bool) {
	if cfg.InactivityTimeout <= 0 {
		return 0, false
	}
	idle := now.Sub(lastActive)
	if idle < 0 {
		idle = 0
	}
	idleSeconds = int64(idle.Seconds())
	return idleSeconds, idle >= cfg.InactivityTimeout
}
