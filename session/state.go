package session

import (
	"time"

	"github.com/arn-sess/sessguard/sessionid"
)

// Status is the three-variant lifecycle tag a State carries.
type Status int

const (
	// StatusActive is the initial and steady-state status of a session.
	StatusActive Status = iota
	// StatusRegenerated marks a state whose id was just rotated via
	// Engine.RegenerateId; the next Start of this logical session reports
	// StatusActive again.
	StatusRegenerated
	// StatusDestroyed is terminal for the owning Engine instance.
	StatusDestroyed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusRegenerated:
		return "REGENERATED"
	case StatusDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Reserved data keys, stripped from the map an application sees and
// reattached on serialization. Never expose these through Get/Set/Remove.
const (
	keyCreatedAt      = "_created_at"
	keyLastActivityAt = "_last_activity_at"
	keyCSRFToken      = "_csrf_token"
	keyUserAgent      = "_user_agent"
	keyIPHash         = "_ip_hash"
)

func isReservedKey(key string) bool {
	switch key {
	case keyCreatedAt, keyLastActivityAt, keyCSRFToken, keyUserAgent, keyIPHash:
		return true
	default:
		return false
	}
}

// State is a conceptually immutable snapshot of a session: mutating
// operations on Engine produce a new State value rather than editing one in
// place, so a State a caller captured earlier never changes underneath it.
type State struct {
	id             sessionid.SessionId
	data           map[string]any
	createdAt      time.Time
	lastActivityAt time.Time
	status         Status
	dirty          bool
}

// ID returns the session's current identifier.
func (s State) ID() sessionid.SessionId { return s.id }

// CreatedAt returns when this logical session was first created.
func (s State) CreatedAt() time.Time { return s.createdAt }

// LastActivityAt returns the instant this session was last resumed.
func (s State) LastActivityAt() time.Time { return s.lastActivityAt }

// Status returns the session's current lifecycle status.
func (s State) Status() Status { return s.status }

// Dirty reports whether the state has mutated since the last successful
// store write.
func (s State) Dirty() bool { return s.dirty }

// Get returns the value stored under key, or def if absent. Reserved keys
// are never visible here, even though the engine keeps them in the same
// underlying map between Start and the next serialization.
func (s State) Get(key string, def any) any {
	if isReservedKey(key) {
		return def
	}
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
