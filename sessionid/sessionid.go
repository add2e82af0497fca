// Package sessionid provides the opaque session identifier type used to
// select stored session payloads.
//
// A SessionId is a canonical, lowercase UUIDv4 textual form. It carries no
// meaning of its own beyond selecting a stored payload: any instance found
// in memory has already passed strict validation, either because it was
// freshly generated here or because it was parsed from an inbound cookie and
// matched the UUIDv4 grammar exactly.
package sessionid

import (
	"crypto/subtle"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID indicates that a candidate string failed the strict UUIDv4
// grammar check and cannot be used as a SessionId.
var ErrInvalidID = errors.New("sessionid: invalid id")

// pattern is the strict UUIDv4 grammar from the spec: no surrounding
// whitespace is tolerated, and the version/variant nibbles are pinned.
var pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// SessionId is an opaque, validated 128-bit session identifier in canonical
// UUIDv4 textual form.
type SessionId struct {
	s string
}

// Generate returns a freshly generated SessionId derived from a CSPRNG.
func Generate() (SessionId, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return SessionId{}, err
	}
	return SessionId{s: id.String()}, nil
}

// Parse validates s against the strict UUIDv4 grammar and, on success,
// returns the corresponding SessionId. No trimming is performed: s must
// already be exactly 36 characters matching the grammar
// (case-insensitively). The returned id holds the lowercased form.
func Parse(s string) (SessionId, error) {
	if !pattern.MatchString(strings.ToLower(s)) {
		return SessionId{}, ErrInvalidID
	}
	return SessionId{s: strings.ToLower(s)}, nil
}

// String returns the canonical lowercase textual form.
func (id SessionId) String() string {
	return id.s
}

// IsZero reports whether id is the zero value (never produced by Generate or
// Parse, useful for "no id yet" sentinel checks).
func (id SessionId) IsZero() bool {
	return id.s == ""
}

// Equal reports whether id and other represent the same identifier, using a
// constant-time comparison over the byte representation so that timing
// cannot be used to learn how much of a guessed id matched.
func (id SessionId) Equal(other SessionId) bool {
	if len(id.s) != len(other.s) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(id.s), []byte(other.s)) == 1
}
