package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHash_IgnoresLineNumber(t *testing.T) {
	a := ErrorHash("E0308", "mismatched types at /home/user/proj/src/main.rs:12:5", "/home/user/proj/src/main.rs")
	b := ErrorHash("E0308", "mismatched types at /home/user/proj/src/main.rs:99:1", "/home/user/proj/src/main.rs")

	assert.Equal(t, a, b, "hash must not change when only the line/column moves")
}

func TestErrorHash_IgnoresAbsolutePathPrefix(t *testing.T) {
	a := ErrorHash("E0308", "mismatched types", "/home/alice/proj/src/main.rs")
	b := ErrorHash("E0308", "mismatched types", "/home/bob/other/src/main.rs")

	assert.Equal(t, a, b, "hash is keyed on basename, not the full path")
}

func TestErrorHash_DifferentCodeDifferentHash(t *testing.T) {
	a := ErrorHash("E0308", "mismatched types", "main.rs")
	b := ErrorHash("E0277", "mismatched types", "main.rs")

	assert.NotEqual(t, a, b)
}

func TestErrorHash_BacktickedTypeNamesNormalized(t *testing.T) {
	a := ErrorHash("E0308", "expected `String`, found `&str`", "main.rs")
	b := ErrorHash("E0308", "expected `Vec<u8>`, found `&[u8]`", "main.rs")

	assert.Equal(t, a, b, "backtick-quoted type names collapse to a common placeholder")
}

func TestErrorHash_EmptyCodeOrPathStillHashes(t *testing.T) {
	h := ErrorHash("", "some error with no code", "")
	assert.NotEmpty(t, h)
	assert.Len(t, h, 64)
}

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash([]byte("hello world"))
	b := ContentHash([]byte("hello world"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestContentHash_DifferentContentDifferentHash(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("world"))
	assert.NotEqual(t, a, b)
}
