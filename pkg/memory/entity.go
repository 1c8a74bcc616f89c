// Package memory implements component C, Memory Recall: fact storage
// with entity extraction, and ranked retrieval by embedding similarity
// + keyword + entity overlap (§4.C).
//
// Grounded on the regex-heuristic style of
// original_source/backend/src/build/types.rs's normalize_message
// (strip-and-fold via regex) for canonicalization, and
// pkg/index/index.go's Symbol/SearchResult shapes for the
// scored-candidate loop structure.
package memory

import (
	"regexp"
	"strings"
)

// EntityType mirrors §3's RawEntity kinds, closed over what §4.C's
// extractor actually recognizes.
type EntityType string

const (
	EntityFilePath  EntityType = "file_path"
	EntityCodeIdent EntityType = "code_ident"
	EntityModule    EntityType = "module"
)

// RawEntity is an entity as found in source text, before
// canonicalization.
type RawEntity struct {
	Raw  string
	Type EntityType
}

var (
	filePathRe  = regexp.MustCompile(`\b[\w./-]+\.(go|rs|py|js|ts|jsx|tsx|java|rb|php|c|cpp|h|hpp)\b`)
	backtickRe  = regexp.MustCompile("`([^`]+)`")
	camelCaseRe = regexp.MustCompile(`\b([a-z][a-zA-Z0-9]*[A-Z][a-zA-Z0-9]*){1,}\b`)
	snakeCaseRe = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+){1,}\b`)
	crateUseRe  = regexp.MustCompile(`\b(?:crate|use|mod)\s+([\w:]+)`)
)

// ExtractEntities runs §4.C's heuristic regex set over content: file
// paths, back-ticked identifiers, CamelCase identifiers with >= 2
// humps and >= 5 chars, snake_case with >= 2 segments and >= 5 chars,
// and crate/module names following crate|use|mod.
func ExtractEntities(content string) []RawEntity {
	var out []RawEntity
	seen := make(map[string]bool)

	add := func(raw string, t EntityType) {
		key := raw + "|" + string(t)
		if raw == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, RawEntity{Raw: raw, Type: t})
	}

	for _, m := range filePathRe.FindAllString(content, -1) {
		add(m, EntityFilePath)
	}
	for _, m := range backtickRe.FindAllStringSubmatch(content, -1) {
		add(m[1], EntityCodeIdent)
	}
	for _, m := range camelCaseRe.FindAllString(content, -1) {
		if len(m) >= 5 && humpCount(m) >= 2 {
			add(m, EntityCodeIdent)
		}
	}
	for _, m := range snakeCaseRe.FindAllString(content, -1) {
		if len(m) >= 5 && strings.Count(m, "_") >= 1 {
			add(m, EntityCodeIdent)
		}
	}
	for _, m := range crateUseRe.FindAllStringSubmatch(content, -1) {
		add(m[1], EntityModule)
	}

	return out
}

func humpCount(s string) int {
	count := 0
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			count++
		}
	}
	return count
}

var (
	repeatRe = regexp.MustCompile(`_{2,}`)
	splitRe  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// Canonicalize folds a raw entity name to its canonical form: CamelCase
// -> snake_case, "-" -> "_", collapse repeated underscores, trim (§4.C).
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "-", "_")
	s = splitRe.ReplaceAllString(s, "${1}_${2}")
	s = strings.ToLower(s)
	s = repeatRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return s
}

// CanonicalEntity is a RawEntity after canonicalization, the unit
// stored and deduplicated by (canonical_name, entity_type) (§4.C).
type CanonicalEntity struct {
	CanonicalName string
	RawName       string
	Type          EntityType
}

// CanonicalizeAll extracts and canonicalizes every entity in content,
// deduplicating by (canonical_name, type).
func CanonicalizeAll(content string) []CanonicalEntity {
	raws := ExtractEntities(content)
	seen := make(map[string]bool)
	var out []CanonicalEntity
	for _, r := range raws {
		canon := Canonicalize(r.Raw)
		if canon == "" {
			continue
		}
		key := canon + "|" + string(r.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, CanonicalEntity{CanonicalName: canon, RawName: r.Raw, Type: r.Type})
	}
	return out
}
