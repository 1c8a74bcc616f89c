package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/forge/internal/logger"
	"github.com/ternarybob/forge/internal/store"
)

// Detector watches running codex sessions and finalizes them once a
// completion signal fires.
type Detector struct {
	store *store.Store
	cfg   Config
}

// New builds a Detector with DefaultConfig.
func New(st *store.Store) *Detector {
	return &Detector{store: st, cfg: DefaultConfig()}
}

// WithConfig builds a Detector with an explicit configuration.
func WithConfig(st *store.Store, cfg Config) *Detector {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Detector{store: st, cfg: cfg}
}

// NotifyText runs the explicit-completion check against a chunk of
// assistant output and, on a match, immediately finalizes the session.
// The engine calls this once when an operation completes, passing the
// accumulated response text, rather than waiting for the next tick,
// since §4.H treats explicit completion as an immediate signal, not a
// polled one.
func (d *Detector) NotifyText(ctx context.Context, sessionID, text string) (*Signal, error) {
	phrase := CheckExplicitCompletion(d.cfg, text)
	if phrase == "" {
		return nil, nil
	}
	sig := Signal{SessionID: sessionID, Reason: ReasonUserExplicitCompletion, Detail: phrase, Timestamp: time.Now()}
	if err := d.record(ctx, sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// NotifyIterations runs the max-iterations check and finalizes the
// session if the ceiling has been reached.
func (d *Detector) NotifyIterations(ctx context.Context, sessionID string, iteration int) (*Signal, error) {
	if !CheckMaxIterations(d.cfg, iteration) {
		return nil, nil
	}
	sig := Signal{SessionID: sessionID, Reason: ReasonMaxIterationsReached, Detail: fmt.Sprintf("%d", iteration), Timestamp: time.Now()}
	if err := d.record(ctx, sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// NotifyToolLoopTerminated records the natural-completion signal the
// engine emits once the model stops requesting tool calls.
func (d *Detector) NotifyToolLoopTerminated(ctx context.Context, sessionID string) error {
	return d.record(ctx, Signal{SessionID: sessionID, Reason: ReasonToolLoopTerminated, Timestamp: time.Now()})
}

// NotifyMaxIterations records a session ending because its iteration
// ceiling was reached. Per completion.rs this is still recorded as a
// completed session, not a failure: the operation ran out of budget,
// it did not error.
func (d *Detector) NotifyMaxIterations(ctx context.Context, sessionID string, iterations int) error {
	return d.record(ctx, Signal{SessionID: sessionID, Reason: ReasonMaxIterationsReached, Detail: fmt.Sprintf("%d", iterations), Timestamp: time.Now()})
}

// NotifyCancelled records a user-initiated cancellation.
func (d *Detector) NotifyCancelled(ctx context.Context, sessionID string) error {
	return d.record(ctx, Signal{SessionID: sessionID, Reason: ReasonUserCancelled, Timestamp: time.Now()})
}

// NotifyFailed records a terminal failure.
func (d *Detector) NotifyFailed(ctx context.Context, sessionID, errMsg string) error {
	return d.record(ctx, Signal{SessionID: sessionID, Reason: ReasonFailed, Detail: errMsg, Timestamp: time.Now()})
}

// CheckStaleSessions scans every running codex session for inactivity
// timeout and git-commit signals, the two checks that can only be
// discovered by polling rather than by an inline engine event. It
// returns every signal found but does not record them; callers poll
// via Run, which finalizes as it goes.
func (d *Detector) CheckStaleSessions(ctx context.Context) []Signal {
	sessions, err := d.store.ListActiveCodexSessions(ctx)
	if err != nil {
		logger.GetLogger().Warn().Err(err).Msg("completion: failed to list active sessions")
		return nil
	}

	now := time.Now()
	var signals []Signal

	for _, sess := range sessions {
		if idleSeconds, timedOut := CheckInactivityTimeout(d.cfg, sess.LastActive, now); timedOut {
			signals = append(signals, Signal{
				SessionID: sess.ID, Reason: ReasonInactivityTimeout,
				Detail: fmt.Sprintf("%ds", idleSeconds), Timestamp: now,
			})
			continue
		}

		if !d.cfg.DetectGitCommits || sess.ProjectID == "" {
			continue
		}
		proj, err := d.store.GetProject(ctx, sess.ProjectID)
		if err != nil {
			continue
		}
		if hash, found := checkGitCommit(ctx, proj.RootPath, sess.LastActive); found {
			signals = append(signals, Signal{
				SessionID: sess.ID, Reason: ReasonGitCommitDetected, Detail: hash, Timestamp: now,
			})
		}
	}

	return signals
}

// record finalizes the session for a signal. Per §3's monotonicity
// invariant, sessions are finalized once; a FinalizeSession call
// against an already-terminal session is a harmless overwrite, not
// re-validated here since the sessions this detector watches are
// always pulled from ListActiveCodexSessions's running-only filter.
func (d *Detector) record(ctx context.Context, sig Signal) error {
	status := store.SessionStatusCompleted
	switch sig.Reason {
	case ReasonUserCancelled:
		status = store.SessionStatusCancelled
	case ReasonFailed:
		status = store.SessionStatusFailed
	}

	if err := d.store.FinalizeSession(ctx, sig.SessionID, status, string(sig.Reason), sig.Timestamp); err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}

	logger.GetLogger().Info().
		Str("session_id", sig.SessionID).
		Str("reason", string(sig.Reason)).
		Str("status", string(status)).
		Msg("completion: recorded session completion")

	return nil
}

// Run polls for stale sessions on the configured tick interval,
// finalizing and publishing each signal it finds, until ctx is
// cancelled. The returned channel is closed when the loop exits.
func (d *Detector) Run(ctx context.Context) <-chan Signal {
	out := make(chan Signal, 100)

	go func() {
		defer close(out)
		ticker := time.NewTicker(d.cfg.TickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sig := range d.CheckStaleSessions(ctx) {
					if err := d.record(ctx, sig); err != nil {
						logger.GetLogger().Warn().Err(err).Str("session_id", sig.SessionID).Msg("completion: failed to record signal")
						continue
					}
					select {
					case out <- sig:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}
