// Package cookie builds Set-Cookie headers according to a configured
// policy, applying safety coercions for prefixed and cross-site cookies.
package cookie

import (
	"fmt"
	"net/url"
	"strings"
)

// SameSite mirrors the three values the spec allows; it exists as its own
// sum type (rather than reusing http.SameSite directly) so construction-time
// validation has a closed set of inputs to reason about.
type SameSite int

const (
	SameSiteStrict SameSite = iota
	SameSiteLax
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteLax:
		return "Lax"
	case SameSiteNone:
		return "None"
	default:
		return "Strict"
	}
}

// Config is the tunable policy for a CookieEmitter.
type Config struct {
	// Name is the cookie name. Default: "__Host-id".
	Name string
	// Secure marks the cookie HTTPS-only. It is forced on for "__Host-"
	// names (including the default name) and for SameSite=None; otherwise
	// the zero value false omits the Secure attribute.
	Secure bool
	// HttpOnly marks the cookie inaccessible to script. Default: true.
	HttpOnly bool
	// SameSite is the SameSite policy. Default: SameSiteStrict.
	SameSite SameSite
	// Path is the cookie path. Default: "/".
	Path string
	// LifetimeSeconds, if non-nil, sets Max-Age. Nil means a session cookie
	// with no Max-Age.
	LifetimeSeconds *int
}

// Emitter builds Set-Cookie header values from SessionState-shaped inputs.
// It is constructed once from a Config, applying safety coercions that
// override caller input:
//
//  1. If Name begins with "__Host-", Secure is forced true, any Domain is
//     forbidden (the emitter never sets one), and Path is forced to "/".
//  2. If SameSite is None, Secure is forced true.
type Emitter struct {
	cfg Config
}

const hostPrefix = "__Host-"

// New returns an Emitter for the given config, applying defaults and safety
// coercions.
func New(cfg Config) *Emitter {
	if cfg.Name == "" {
		cfg.Name = hostPrefix + "id"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if len(cfg.Name) >= len(hostPrefix) && cfg.Name[:len(hostPrefix)] == hostPrefix {
		cfg.Secure = true
		cfg.Path = "/"
	}
	if cfg.SameSite == SameSiteNone {
		cfg.Secure = true
	}
	return &Emitter{cfg: cfg}
}

// State is the minimal shape of session state this package needs in order to
// emit a cookie: an id and whether the session has been destroyed. Defined
// locally (rather than importing the session package) to avoid a dependency
// cycle between session and cookie.
type State struct {
	ID        string
	Destroyed bool
}

// epochExpires is the fixed Expires value attached to an expiring
// (destroyed-session) cookie.
const epochExpires = "Thu, 01 Jan 1970 00:00:00 GMT"

// Emit builds the Set-Cookie header value for the given state, or returns
// ("", false) if no cookie should be emitted (never the case today, but
// kept symmetric with the spec's "string | NONE" signature).
//
// Attribute order follows the spec exactly rather than net/http's default
// Cookie.String ordering:
//
//	name=urlencode(id); Path=<path>[; Secure][; HttpOnly]; SameSite=<policy>[; Max-Age=<n>]
//
// and, for destroyed sessions:
//
//	name=urlencode(id); Path=<path>; Expires=<epoch>; Max-Age=0[; Secure][; HttpOnly]; SameSite=<policy>
func (e *Emitter) Emit(s State) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s; Path=%s", e.cfg.Name, url.QueryEscape(s.ID), e.cfg.Path)
	if s.Destroyed {
		fmt.Fprintf(&b, "; Expires=%s; Max-Age=0", epochExpires)
		if e.cfg.Secure {
			b.WriteString("; Secure")
		}
		if e.cfg.HttpOnly {
			b.WriteString("; HttpOnly")
		}
		fmt.Fprintf(&b, "; SameSite=%s", e.cfg.SameSite)
		return b.String(), true
	}
	if e.cfg.Secure {
		b.WriteString("; Secure")
	}
	if e.cfg.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	fmt.Fprintf(&b, "; SameSite=%s", e.cfg.SameSite)
	if e.cfg.LifetimeSeconds != nil {
		fmt.Fprintf(&b, "; Max-Age=%d", *e.cfg.LifetimeSeconds)
	}
	return b.String(), true
}
