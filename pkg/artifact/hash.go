// Package artifact implements component E: content-hashed artifacts
// and build-error deduplication.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
)

// ContentHash computes the untruncated hex SHA-256 of content. This is
// the only place in the module that produces an artifact's
// content_hash (DESIGN.md Open Question #3): callers never supply a
// hash, they supply bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

var (
	lineColRe = regexp.MustCompile(`:\d+:\d+`)
	typeRe    = regexp.MustCompile("`[^`]+`")
	pathRe    = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)+`)
)

// normalizeMessage strips line/column numbers, backtick-quoted type
// names, and absolute paths from a build error message so that the
// same underlying error reported at a different location still hashes
// identically. Grounded on original_source/backend/src/build/types.rs's
// normalize_error_message.
func normalizeMessage(message string) string {
	normalized := lineColRe.ReplaceAllString(message, ":N:N")
	normalized = typeRe.ReplaceAllString(normalized, "`T`")
	normalized = pathRe.ReplaceAllString(normalized, "/PATH")
	return normalized
}

// ErrorHash computes the deduplication key for a build error:
// SHA256(error_code || normalize(message) || basename(file_path)),
// deliberately excluding line numbers (Invariant 7). Matches
// original_source/backend/src/build/types.rs's BuildError::compute_hash
// field order exactly.
func ErrorHash(errorCode, message, filePath string) string {
	h := sha256.New()
	if errorCode != "" {
		h.Write([]byte(errorCode))
	}
	h.Write([]byte(normalizeMessage(message)))
	if filePath != "" {
		h.Write([]byte(filepath.Base(filePath)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
