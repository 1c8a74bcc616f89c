package artifact

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/forge/internal/store"
)

// IngestBuildRun persists a completed build invocation and its parsed,
// deduplicated errors (§4.E). It is the single entry point the Engine
// and the execute_command tool handler call after a build-shaped
// command finishes.
func IngestBuildRun(ctx context.Context, st *store.Store, projectID, operationID, command string, exitCode int, started, completed time.Time, stdout, stderr string) (store.BuildRun, []store.BuildError, error) {
	buildType := DetectBuildType(command)
	parsed := ParseBuildOutput(buildType, stdout, stderr)

	run := store.BuildRun{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		OperationID: operationID,
		BuildType:   string(buildType),
		Command:     command,
		ExitCode:    exitCode,
		StartedAt:   started,
		CompletedAt: completed,
		Stdout:      stdout,
		Stderr:      stderr,
	}
	for _, pe := range parsed {
		if pe.Severity == SeverityWarning {
			run.WarningCount++
		} else {
			run.ErrorCount++
		}
	}
	if err := st.InsertBuildRun(ctx, run); err != nil {
		return run, nil, err
	}

	now := time.Now()
	errs := make([]store.BuildError, 0, len(parsed))
	for _, pe := range parsed {
		hash := ErrorHash(pe.ErrorCode, pe.Message, pe.FilePath)
		be := store.BuildError{
			ID:          uuid.NewString(),
			BuildRunID:  run.ID,
			ErrorHash:   hash,
			Severity:    string(pe.Severity),
			ErrorCode:   pe.ErrorCode,
			Message:     pe.Message,
			FilePath:    pe.FilePath,
			LineNumber:  pe.LineNumber,
			Category:    string(pe.Category),
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		if err := st.UpsertBuildError(ctx, projectID, be); err != nil {
			return run, errs, err
		}
		errs = append(errs, be)
	}
	return run, errs, nil
}
