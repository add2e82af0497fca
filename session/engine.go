// Package session implements the session lifecycle state machine: cookie
// acceptance, idle/absolute timeout enforcement, hijack detection via
// client-binding fingerprints, id rotation with a grace window, and
// destruction. It ties together sessionid, csrftoken, envelope, fingerprint,
// cookie, and a store.Store into a single per-request Engine.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/exp/slog"

	"github.com/arn-sess/sessguard/cookie"
	"github.com/arn-sess/sessguard/csrftoken"
	"github.com/arn-sess/sessguard/envelope"
	"github.com/arn-sess/sessguard/fingerprint"
	"github.com/arn-sess/sessguard/internal/retry"
	"github.com/arn-sess/sessguard/sessionid"
	"github.com/arn-sess/sessguard/store"
)

const (
	defaultIdleTimeout     = 30 * time.Minute
	defaultAbsoluteTimeout = 4 * time.Hour
	defaultGraceSeconds    = 10 * time.Second
)

// Config holds engine tunables. Zero-valued fields are replaced by the
// documented defaults in NewEngine.
type Config struct {
	// IdleTimeout is the inactivity window before a resumed session is
	// destroyed and replaced. Default: 30m.
	IdleTimeout time.Duration
	// AbsoluteTimeout is the maximum session lifetime regardless of
	// activity; it also bounds the store TTL on write. Default: 4h.
	// Must be >= IdleTimeout.
	AbsoluteTimeout time.Duration
	// BindToIP enables the IP-hash binding check on resume. Default: true.
	// A *bool (rather than bool) so that "unset" and "explicitly disabled"
	// are distinguishable; nil defaults to true.
	BindToIP *bool
	// BindToUserAgent enables the User-Agent binding check on resume.
	// Default: true. See BindToIP for why this is a *bool.
	BindToUserAgent *bool
	// EncryptionKey, if non-nil, enables the envelope: stored payloads are
	// AES-256-GCM encrypted under a key derived (via HKDF-SHA256) from this
	// secret. Must be >= 32 bytes if set.
	EncryptionKey []byte
	// GraceSeconds is the old-id retention window applied by RegenerateId.
	// Default: 10s.
	GraceSeconds time.Duration
	// Cookie configures the emitted session cookie's shape.
	Cookie cookie.Config
	// Clock can be overridden in tests.
	Clock func() time.Time
}

func boolPtr(b bool) *bool { return &b }

func (c *Config) setDefaults() {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.AbsoluteTimeout == 0 {
		c.AbsoluteTimeout = defaultAbsoluteTimeout
	}
	if c.GraceSeconds == 0 {
		c.GraceSeconds = defaultGraceSeconds
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.BindToIP == nil {
		c.BindToIP = boolPtr(true)
	}
	if c.BindToUserAgent == nil {
		c.BindToUserAgent = boolPtr(true)
	}
}

// deriveEnvelopeKey derives a 32-byte AES-256 key from ikm via HKDF-SHA256,
// the same extract-then-expand shape the teacher uses to split one input
// key into several purpose-bound keys.
func deriveEnvelopeKey(ikm []byte) ([]byte, error) {
	prk := hkdf.Extract(sha256.New, ikm, nil)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, []byte("sessguard-envelope-key")), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Engine is the per-request session lifecycle state machine. One Engine
// instance must be bound to exactly one request: it is not safe for
// concurrent use by multiple goroutines.
type Engine struct {
	store    store.Store
	envelope *envelope.Envelope
	cookies  *cookie.Emitter
	cfg      Config

	initialized bool
	state       State

	// capturedUserAgent / capturedIPHash are the current request's
	// fingerprint, captured at Start and used by Commit/RegenerateId to
	// populate binding metadata omitted from a freshly created session
	// (rather than only a resumed one).
	capturedUserAgent string
	capturedIPHash    string
}

// NewEngine returns a new Engine backed by s, applying cfg (with defaults
// filled in). It returns ErrConfig if IdleTimeout > AbsoluteTimeout or if
// EncryptionKey is set but shorter than 32 bytes.
func NewEngine(s store.Store, cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if cfg.IdleTimeout > cfg.AbsoluteTimeout {
		return nil, fmt.Errorf("idle timeout exceeds absolute timeout: %w", ErrConfig)
	}

	var env *envelope.Envelope
	if cfg.EncryptionKey != nil {
		if len(cfg.EncryptionKey) < 32 {
			return nil, fmt.Errorf("encryption key too short (want >= 32 bytes): %w", ErrConfig)
		}
		key, err := deriveEnvelopeKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrConfig)
		}
		env, err = envelope.New(key)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		store:    s,
		envelope: env,
		cookies:  cookie.New(cfg.Cookie),
		cfg:      cfg,
	}, nil
}

func (e *Engine) now() time.Time { return e.cfg.Clock() }

func (e *Engine) cookieName() string {
	if e.cfg.Cookie.Name != "" {
		return e.cfg.Cookie.Name
	}
	return "__Host-id"
}

// generateID returns a freshly generated SessionId, retrying briefly if the
// underlying CSPRNG is momentarily starved.
func (e *Engine) generateID() (sessionid.SessionId, error) {
	policy := retry.Backoff{Base: 10 * time.Millisecond, Growth: 2.0, Jitter: 0.2}
	id, err := retry.Generate(policy, 3, func() (sessionid.SessionId, error) {
		gen, err := sessionid.Generate()
		if err != nil {
			slog.Error("failed to generate session id", "error", err)
		}
		return gen, err
	})
	if err != nil {
		return sessionid.SessionId{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	return id, nil
}

func (e *Engine) createFresh() (State, error) {
	id, err := e.generateID()
	if err != nil {
		return State{}, err
	}
	now := e.now()
	return State{
		id:             id,
		data:           map[string]any{},
		createdAt:      now,
		lastActivityAt: now,
		status:         StatusActive,
		dirty:          false,
	}, nil
}

// Start materializes a SessionState for the given request: it is idempotent
// per Engine instance, so a second call simply returns the previously
// resolved state. Security-relevant rejections (invalid cookie, missing
// entry, corrupt/undecryptable payload, timeout, binding mismatch) are
// handled silently by falling back to a fresh session; only a Store
// infrastructure failure (wrapping ErrStoreIO) or a failure to generate a
// fresh session id is surfaced as an error.
func (e *Engine) Start(ctx context.Context, r *http.Request) (State, error) {
	if e.initialized {
		return e.state, nil
	}

	e.capturedUserAgent = r.UserAgent()
	e.capturedIPHash = fingerprint.IPHash(fingerprint.ClientIP(r))

	state, err := e.start(ctx, r)
	if err != nil {
		return State{}, err
	}
	e.state = state
	e.initialized = true
	return e.state, nil
}

func (e *Engine) start(ctx context.Context, r *http.Request) (State, error) {
	c, err := r.Cookie(e.cookieName())
	if err != nil {
		return e.createFresh()
	}

	id, err := sessionid.Parse(c.Value)
	if err != nil {
		return e.createFresh()
	}

	raw, ok, err := e.store.Read(ctx, id.String())
	if err != nil {
		return State{}, fmt.Errorf("%v: %w", err, ErrStoreIO)
	}
	if !ok {
		return e.createFresh()
	}

	plaintext := raw
	if e.envelope != nil {
		plaintext, err = e.envelope.Decrypt(raw)
		if err != nil {
			slog.Debug("discarding session with undecryptable payload", "id", id.String())
			e.destroyBestEffort(ctx, id)
			return e.createFresh()
		}
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		slog.Debug("discarding session with corrupt payload", "id", id.String())
		e.destroyBestEffort(ctx, id)
		return e.createFresh()
	}

	now := e.now()
	created := parseTimeOrDefault(payload[keyCreatedAt], now)
	lastActivity := parseTimeOrDefault(payload[keyLastActivityAt], now)

	if now.Sub(lastActivity) > e.cfg.IdleTimeout {
		slog.Debug("destroying idle-expired session", "id", id.String())
		e.destroyBestEffort(ctx, id)
		return e.createFresh()
	}
	if now.Sub(created) > e.cfg.AbsoluteTimeout {
		slog.Debug("destroying absolute-expired session", "id", id.String())
		e.destroyBestEffort(ctx, id)
		return e.createFresh()
	}

	if !e.verifyBinding(payload) {
		slog.Debug("destroying session failing binding check", "id", id.String())
		e.destroyBestEffort(ctx, id)
		return e.createFresh()
	}

	data := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != keyCreatedAt && k != keyLastActivityAt {
			data[k] = v
		}
	}

	return State{
		id:             id,
		data:           data,
		createdAt:      created,
		lastActivityAt: now,
		status:         StatusActive,
		dirty:          false,
	}, nil
}

// verifyBinding checks each enabled binding dimension whose fingerprint key
// is present in the stored payload. A dimension absent from the payload is
// not a mismatch: it means the session predates that binding being enabled,
// or OQ1's first-commit population hasn't happened yet.
func (e *Engine) verifyBinding(payload map[string]any) bool {
	if *e.cfg.BindToUserAgent {
		if stored, ok := payload[keyUserAgent].(string); ok {
			if !fingerprint.Equal(stored, e.capturedUserAgent) {
				return false
			}
		}
	}
	if *e.cfg.BindToIP {
		if stored, ok := payload[keyIPHash].(string); ok {
			if !fingerprint.Equal(stored, e.capturedIPHash) {
				return false
			}
		}
	}
	return true
}

// destroyBestEffort removes a stored entry as part of a silent
// security-driven rejection. Failure is logged, not surfaced: the caller is
// about to receive a fresh session regardless, and the entry will expire
// naturally if this delete doesn't land.
func (e *Engine) destroyBestEffort(ctx context.Context, id sessionid.SessionId) {
	if err := e.store.Destroy(ctx, id.String()); err != nil {
		slog.Error("failed to destroy rejected session", "id", id.String(), "error", err)
	}
}

func parseTimeOrDefault(v any, def time.Time) time.Time {
	s, ok := v.(string)
	if !ok {
		return def
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return def
	}
	return t
}

func (e *Engine) requireStarted() error {
	if !e.initialized {
		return ErrNotStarted
	}
	return nil
}

// Get returns the value stored under key, or def if absent.
func (e *Engine) Get(key string, def any) (any, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.state.Get(key, def), nil
}

// Set stores value under key, marking the state dirty. It rejects the
// reserved metadata keys (_created_at, _last_activity_at, _csrf_token,
// _user_agent, _ip_hash) with ErrReservedKey; other `_`-prefixed keys are
// accepted.
func (e *Engine) Set(key string, value any) error {
	if err := e.requireStarted(); err != nil {
		return err
	}
	if isReservedKey(key) {
		return ErrReservedKey
	}
	data := cloneMap(e.state.data)
	data[key] = value
	e.state.data = data
	e.state.dirty = true
	return nil
}

// Remove deletes key from the state, marking it dirty only if key was
// actually present.
func (e *Engine) Remove(key string) error {
	if err := e.requireStarted(); err != nil {
		return err
	}
	if _, ok := e.state.data[key]; !ok {
		return nil
	}
	data := cloneMap(e.state.data)
	delete(data, key)
	e.state.data = data
	e.state.dirty = true
	return nil
}

// Clear empties the state's data map, marking it dirty.
func (e *Engine) Clear() error {
	if err := e.requireStarted(); err != nil {
		return err
	}
	e.state.data = map[string]any{}
	e.state.dirty = true
	return nil
}

// State returns the engine's current session state.
func (e *Engine) State() (State, error) {
	if err := e.requireStarted(); err != nil {
		return State{}, err
	}
	return e.state, nil
}

// ensureBindingMetadata populates _user_agent/_ip_hash from the request
// fingerprint captured at Start, for any binding dimension that's enabled
// but not yet present in the session's data. This runs immediately before
// every serialization (Commit and RegenerateId) so a freshly created
// session acquires its binding metadata on first write, not only a resumed
// one.
func (e *Engine) ensureBindingMetadata() {
	if *e.cfg.BindToUserAgent {
		if _, ok := e.state.data[keyUserAgent]; !ok {
			data := cloneMap(e.state.data)
			data[keyUserAgent] = e.capturedUserAgent
			e.state.data = data
		}
	}
	if *e.cfg.BindToIP {
		if _, ok := e.state.data[keyIPHash]; !ok {
			data := cloneMap(e.state.data)
			data[keyIPHash] = e.capturedIPHash
			e.state.data = data
		}
	}
}

func (e *Engine) serialize(s State) ([]byte, error) {
	payload := make(map[string]any, len(s.data)+2)
	for k, v := range s.data {
		payload[k] = v
	}
	payload[keyCreatedAt] = s.createdAt.UTC().Format(time.RFC3339Nano)
	payload[keyLastActivityAt] = s.lastActivityAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(payload)
}

// storeTTL refines the absolute timeout down to the time actually remaining
// until this session's absolute expiry, so a payload never lingers in the
// store past the point the engine itself would consider it expired.
func (e *Engine) storeTTL(createdAt time.Time) time.Duration {
	remaining := e.cfg.AbsoluteTimeout - e.now().Sub(createdAt)
	if remaining < 0 {
		return 0
	}
	if remaining < e.cfg.AbsoluteTimeout {
		return remaining
	}
	return e.cfg.AbsoluteTimeout
}

// RegenerateId preserves the session's data but rotates its id, writing the
// new payload under the new id and, for GraceSeconds, also under the old id
// so a concurrent request still holding the old cookie keeps resolving to
// live data. Exactly two store writes happen, regardless of any later
// mutation in the same request.
func (e *Engine) RegenerateId(ctx context.Context) error {
	if err := e.requireStarted(); err != nil {
		return err
	}

	oldID := e.state.id
	newID, err := e.generateID()
	if err != nil {
		return err
	}

	e.ensureBindingMetadata()
	newState := e.state
	newState.id = newID
	newState.status = StatusRegenerated
	newState.dirty = true

	payload, err := e.serialize(newState)
	if err != nil {
		return err
	}
	blob, err := e.encrypt(payload)
	if err != nil {
		return err
	}

	if err := e.store.Write(ctx, newID.String(), blob, e.storeTTL(newState.createdAt)); err != nil {
		return fmt.Errorf("%v: %w", err, ErrStoreIO)
	}
	if err := e.store.Write(ctx, oldID.String(), blob, e.cfg.GraceSeconds); err != nil {
		// Non-critical: the new id is already durable. A concurrent holder of
		// the old cookie simply loses the grace window early.
		slog.Error("failed to write grace-window entry for old session id", "id", oldID.String(), "error", err)
	}

	newState.dirty = false
	e.state = newState
	return nil
}

func (e *Engine) encrypt(plaintext []byte) ([]byte, error) {
	if e.envelope == nil {
		return plaintext, nil
	}
	return e.envelope.Encrypt(plaintext)
}

// Destroy removes the session from the store and transitions the state to
// DESTROYED. Commit will then emit an expiring cookie.
func (e *Engine) Destroy(ctx context.Context) error {
	if err := e.requireStarted(); err != nil {
		return err
	}
	err := e.store.Destroy(ctx, e.state.id.String())
	e.state.data = map[string]any{}
	e.state.status = StatusDestroyed
	e.state.dirty = true
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrStoreIO)
	}
	return nil
}

// Commit persists the state if dirty and not destroyed, then attaches the
// Set-Cookie header the session's current status calls for. A read-only
// request (no Set/Remove/Clear/RegenerateId/Destroy call since Start)
// performs zero store writes.
func (e *Engine) Commit(ctx context.Context, w http.ResponseWriter) error {
	if err := e.requireStarted(); err != nil {
		return err
	}

	if e.state.dirty && e.state.status != StatusDestroyed {
		e.ensureBindingMetadata()
		payload, err := e.serialize(e.state)
		if err != nil {
			return err
		}
		blob, err := e.encrypt(payload)
		if err != nil {
			return err
		}
		if err := e.store.Write(ctx, e.state.id.String(), blob, e.storeTTL(e.state.createdAt)); err != nil {
			return fmt.Errorf("%v: %w", err, ErrStoreIO)
		}
		e.state.dirty = false
	}

	if value, ok := e.cookies.Emit(cookie.State{
		ID:        e.state.id.String(),
		Destroyed: e.state.status == StatusDestroyed,
	}); ok {
		w.Header().Set("Set-Cookie", value)
	}
	return nil
}

// GenerateCsrfToken issues a fresh CSRF token, stores its hash under
// _csrf_token (overwriting any prior token's hash), and returns the raw
// token for the caller to hand to the client. The state becomes dirty.
func (e *Engine) GenerateCsrfToken() (csrftoken.CsrfToken, error) {
	if err := e.requireStarted(); err != nil {
		return csrftoken.CsrfToken{}, err
	}
	tok, err := csrftoken.Generate()
	if err != nil {
		return csrftoken.CsrfToken{}, err
	}
	data := cloneMap(e.state.data)
	data[keyCSRFToken] = tok.Hash()
	e.state.data = data
	e.state.dirty = true
	return tok, nil
}

// IsCsrfTokenValid reports whether submitted is the most recently issued
// CSRF token for this session. It does not consume the token; callers
// wanting single-use semantics should Remove the stored hash themselves.
func (e *Engine) IsCsrfTokenValid(submitted string) (bool, error) {
	if err := e.requireStarted(); err != nil {
		return false, err
	}
	stored, ok := e.state.data[keyCSRFToken].(string)
	if !ok {
		return false, nil
	}
	tok, err := csrftoken.Parse(submitted)
	if err != nil {
		return false, nil
	}
	return tok.EqualsHashed(stored), nil
}
