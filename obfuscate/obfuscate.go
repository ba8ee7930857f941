// Package obfuscate implements the reversible transform applied to stored
// records.
//
// This is obfuscation, not encryption: the transform is fixed and public, so
// anyone with access to the stored text can reverse it. It only keeps the
// records from being readable at a glance.
package obfuscate

import (
	"encoding/base64"
	"errors"
	"strings"
	"unicode/utf8"
)

// Marker is appended to every encoded value.
const Marker = "codeflow-secure-key-v1"

var ErrMalformed = errors.New("obfuscate: malformed value")

// Encode transforms s into its stored form.
func Encode(s string) string {
	return reverse(base64.StdEncoding.EncodeToString([]byte(s))) + Marker
}

// Decode inverts Encode. Values without the marker, with a damaged payload or
// decoding to invalid UTF-8 yield ErrMalformed.
func Decode(s string) (string, error) {
	payload, ok := strings.CutSuffix(s, Marker)
	if !ok {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(reverse(payload))
	if err != nil {
		return "", ErrMalformed
	}
	if !utf8.Valid(raw) {
		return "", ErrMalformed
	}
	return string(raw), nil
}

// IsEncoded reports whether s looks like an Encode result.
func IsEncoded(s string) bool {
	return strings.HasSuffix(s, Marker)
}

// reverse works on bytes; base64 output is ASCII.
func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
