package artifact

import "strings"

// BuildType classifies the tool that produced a build run. Grounded on
// original_source/backend/src/build/types.rs's BuildType enum.
type BuildType string

const (
	BuildTypeCargoBuild BuildType = "cargo_build"
	BuildTypeCargoCheck BuildType = "cargo_check"
	BuildTypeCargoTest  BuildType = "cargo_test"
	BuildTypeCargoClippy BuildType = "cargo_clippy"
	BuildTypeNpmBuild   BuildType = "npm_build"
	BuildTypeNpmTest    BuildType = "npm_test"
	BuildTypeTsc        BuildType = "tsc"
	BuildTypePytest     BuildType = "pytest"
	BuildTypeMypy       BuildType = "mypy"
	BuildTypeGoBuild    BuildType = "go_build"
	BuildTypeGoTest     BuildType = "go_test"
	BuildTypeGoVet      BuildType = "go_vet"
	BuildTypeMake       BuildType = "make"
	BuildTypeGeneric    BuildType = "generic"
)

// DetectBuildType classifies command the same way the prefix/contains
// rules in original_source classify a cargo/npm/tsc/pytest invocation,
// extended with the go toolchain's own verbs since the source corpus
// targets a Rust project and this module's own build surface is Go.
func DetectBuildType(command string) BuildType {
	cmd := strings.ToLower(strings.TrimSpace(command))
	switch {
	case strings.HasPrefix(cmd, "cargo build"):
		return BuildTypeCargoBuild
	case strings.HasPrefix(cmd, "cargo check"):
		return BuildTypeCargoCheck
	case strings.HasPrefix(cmd, "cargo test"):
		return BuildTypeCargoTest
	case strings.HasPrefix(cmd, "cargo clippy"):
		return BuildTypeCargoClippy
	case strings.HasPrefix(cmd, "go build"):
		return BuildTypeGoBuild
	case strings.HasPrefix(cmd, "go test"):
		return BuildTypeGoTest
	case strings.HasPrefix(cmd, "go vet"):
		return BuildTypeGoVet
	case strings.Contains(cmd, "npm run build") || strings.Contains(cmd, "yarn build"):
		return BuildTypeNpmBuild
	case strings.Contains(cmd, "npm test") || strings.Contains(cmd, "yarn test") ||
		strings.Contains(cmd, "vitest") || strings.Contains(cmd, "jest"):
		return BuildTypeNpmTest
	case strings.HasPrefix(cmd, "tsc"):
		return BuildTypeTsc
	case strings.HasPrefix(cmd, "pytest") || strings.Contains(cmd, "python -m pytest"):
		return BuildTypePytest
	case strings.HasPrefix(cmd, "mypy"):
		return BuildTypeMypy
	case strings.HasPrefix(cmd, "make"):
		return BuildTypeMake
	default:
		return BuildTypeGeneric
	}
}

// ErrorSeverity mirrors §3's BuildError.severity.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityNote    ErrorSeverity = "note"
	SeverityHelp    ErrorSeverity = "help"
	SeverityInfo    ErrorSeverity = "info"
)

// ErrorCategory groups similar errors for recall and suggestion
// purposes. Grounded on original_source's ErrorCategory enum.
type ErrorCategory string

const (
	CategoryType       ErrorCategory = "type"
	CategorySyntax     ErrorCategory = "syntax"
	CategoryImport     ErrorCategory = "import"
	CategoryUndefined  ErrorCategory = "undefined"
	CategoryUnused     ErrorCategory = "unused"
	CategoryTestFailure ErrorCategory = "test_failure"
	CategoryAssertion  ErrorCategory = "assertion"
	CategoryRuntime    ErrorCategory = "runtime"
	CategoryConfig     ErrorCategory = "config"
	CategoryDependency ErrorCategory = "dependency"
	CategoryOther      ErrorCategory = "other"
)

// ResolutionType records how a build error was eventually fixed.
type ResolutionType string

const (
	ResolutionCodeChange      ResolutionType = "code_change"
	ResolutionConfigChange    ResolutionType = "config_change"
	ResolutionDependencyUpdate ResolutionType = "dependency_update"
	ResolutionRevert          ResolutionType = "revert"
	ResolutionWontFix         ResolutionType = "wont_fix"
	ResolutionAutoResolved    ResolutionType = "auto_resolved"
)
