package artifact

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedError is one error/warning line extracted from a build's
// stdout/stderr by a per-build-type recognizer, before hashing and
// dedup (§4.E "parse stdout/stderr via per-build-type recognizers to
// produce BuildError rows").
type ParsedError struct {
	Severity    ErrorSeverity
	ErrorCode   string
	Message     string
	FilePath    string
	LineNumber  int
	Category    ErrorCategory
}

// This is a regex-based recognizer set, one pattern family per
// build type. No example repo in the pack links a compiler-diagnostic
// parsing library; each toolchain's own human-readable diagnostic
// format is matched line-by-line, the same way pkg/index/parser.go
// matches source constructs with regexp rather than a grammar.
var (
	goErrorRe   = regexp.MustCompile(`^(?:# .*\n)?([^\s:][^:]*):(\d+):(\d+):\s*(.+)$`)
	goVetRe     = regexp.MustCompile(`^([^\s:][^:]*):(\d+):(\d+):\s*(.+)$`)
	cargoRe     = regexp.MustCompile(`^(error|warning)(?:\[(E\d+)\])?:\s*(.+)$`)
	cargoLocRe  = regexp.MustCompile(`^\s*-->\s*([^:]+):(\d+):(\d+)$`)
	tscRe       = regexp.MustCompile(`^([^\s(]+)\((\d+),(\d+)\):\s*(error|warning)\s*(TS\d+)?:?\s*(.*)$`)
	pytestRe    = regexp.MustCompile(`^(?:E\s+)?([\w.]*(?:Error|Exception|Failed))\b[:\s]*(.*)$`)
	pytestFileRe = regexp.MustCompile(`^([^:\s]+\.py):(\d+):`)
	eslintRe    = regexp.MustCompile(`^\s*(\d+):(\d+)\s+(error|warning)\s+(.+)$`)
)

// ParseBuildOutput dispatches to a recognizer by BuildType and returns
// every error/warning line it found. Parse failures on individual lines
// are simply skipped rather than failing the whole build ingest,
// mirroring §4.B's per-file isolation philosophy applied to per-line
// parsing here.
func ParseBuildOutput(buildType BuildType, stdout, stderr string) []ParsedError {
	combined := stdout + "\n" + stderr
	switch buildType {
	case BuildTypeGoBuild, BuildTypeGoTest:
		return parseGoBuild(combined)
	case BuildTypeGoVet:
		return parseGoVet(combined)
	case BuildTypeCargoBuild, BuildTypeCargoCheck, BuildTypeCargoTest, BuildTypeCargoClippy:
		return parseCargo(combined)
	case BuildTypeTsc:
		return parseTsc(combined)
	case BuildTypePytest:
		return parsePytest(combined)
	case BuildTypeNpmBuild, BuildTypeNpmTest:
		return parseEslintLike(combined)
	default:
		return parseGeneric(combined)
	}
}

func parseGoBuild(output string) []ParsedError {
	var out []ParsedError
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := goErrorRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		out = append(out, ParsedError{
			Severity:   SeverityError,
			Message:    strings.TrimSpace(m[4]),
			FilePath:   m[1],
			LineNumber: lineNum,
			Category:   categorizeGoMessage(m[4]),
		})
	}
	return out
}

func parseGoVet(output string) []ParsedError {
	var out []ParsedError
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		m := goVetRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		out = append(out, ParsedError{
			Severity:   SeverityWarning,
			Message:    strings.TrimSpace(m[4]),
			FilePath:   m[1],
			LineNumber: lineNum,
			Category:   CategoryOther,
		})
	}
	return out
}

func categorizeGoMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "undefined:"):
		return CategoryUndefined
	case strings.Contains(lower, "cannot use") || strings.Contains(lower, "mismatched types") ||
		strings.Contains(lower, "cannot convert"):
		return CategoryType
	case strings.Contains(lower, "declared and not used") || strings.Contains(lower, "imported and not used"):
		return CategoryUnused
	case strings.Contains(lower, "expected") && strings.Contains(lower, "found"):
		return CategorySyntax
	case strings.Contains(lower, "no required module") || strings.Contains(lower, "missing go.sum"):
		return CategoryDependency
	default:
		return CategoryOther
	}
}

func parseCargo(output string) []ParsedError {
	var out []ParsedError
	lines := strings.Split(output, "\n")
	for i := 0; i < len(lines); i++ {
		m := cargoRe.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m == nil {
			continue
		}
		severity := SeverityError
		if m[1] == "warning" {
			severity = SeverityWarning
		}
		pe := ParsedError{
			Severity:  severity,
			ErrorCode: m[2],
			Message:   strings.TrimSpace(m[3]),
			Category:  categorizeCargoMessage(m[3]),
		}
		// The location usually follows on the next "--> file:line:col" line.
		if i+1 < len(lines) {
			if loc := cargoLocRe.FindStringSubmatch(strings.TrimRight(lines[i+1], "\r")); loc != nil {
				pe.FilePath = loc[1]
				pe.LineNumber, _ = strconv.Atoi(loc[2])
			}
		}
		out = append(out, pe)
	}
	return out
}

func categorizeCargoMessage(msg string) ErrorCategory {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "mismatched types") || strings.Contains(lower, "expected") && strings.Contains(lower, "type"):
		return CategoryType
	case strings.Contains(lower, "cannot find") || strings.Contains(lower, "unresolved import"):
		return CategoryImport
	case strings.Contains(lower, "unused"):
		return CategoryUnused
	case strings.Contains(lower, "expected one of") || strings.Contains(lower, "syntax"):
		return CategorySyntax
	default:
		return CategoryOther
	}
}

func parseTsc(output string) []ParsedError {
	var out []ParsedError
	for _, line := range strings.Split(output, "\n") {
		m := tscRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		severity := SeverityError
		if m[4] == "warning" {
			severity = SeverityWarning
		}
		out = append(out, ParsedError{
			Severity:   severity,
			ErrorCode:  m[5],
			Message:    strings.TrimSpace(m[6]),
			FilePath:   m[1],
			LineNumber: lineNum,
			Category:   CategoryType,
		})
	}
	return out
}

func parsePytest(output string) []ParsedError {
	var out []ParsedError
	var lastFile string
	var lastLine int
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if loc := pytestFileRe.FindStringSubmatch(line); loc != nil {
			lastFile = loc[1]
			lastLine, _ = strconv.Atoi(loc[2])
			continue
		}
		m := pytestRe.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		category := CategoryRuntime
		if strings.Contains(m[1], "Assertion") {
			category = CategoryAssertion
		}
		out = append(out, ParsedError{
			Severity:   SeverityError,
			ErrorCode:  m[1],
			Message:    strings.TrimSpace(m[2]),
			FilePath:   lastFile,
			LineNumber: lastLine,
			Category:   category,
		})
	}
	return out
}

func parseEslintLike(output string) []ParsedError {
	var out []ParsedError
	var currentFile string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed != "" && !strings.HasPrefix(strings.TrimSpace(trimmed), " ") && strings.Contains(trimmed, "/") {
			currentFile = strings.TrimSpace(trimmed)
			continue
		}
		m := eslintRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[1])
		severity := SeverityError
		if m[3] == "warning" {
			severity = SeverityWarning
		}
		out = append(out, ParsedError{
			Severity:   severity,
			Message:    strings.TrimSpace(m[4]),
			FilePath:   currentFile,
			LineNumber: lineNum,
			Category:   CategoryOther,
		})
	}
	return out
}

// parseGeneric handles BuildTypeGeneric and BuildTypeMake by looking
// for lines containing "error" or "warning" without structured location
// information, matching the spec's tolerance for unrecognized build
// tools (an unparsed build still ingests, with zero BuildError rows).
func parseGeneric(output string) []ParsedError {
	var out []ParsedError
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error:") || strings.Contains(lower, " error "):
			out = append(out, ParsedError{Severity: SeverityError, Message: strings.TrimSpace(line), Category: CategoryOther})
		case strings.Contains(lower, "warning:") || strings.Contains(lower, " warning "):
			out = append(out, ParsedError{Severity: SeverityWarning, Message: strings.TrimSpace(line), Category: CategoryOther})
		}
	}
	return out
}
