// Package scribble contains the version number of scribble and process-wide
// settings shared by every package.
package scribble

import "time"

// Version is the current version of scribble.
//
// This variable is set at build time using the -X linker flag. If not set,
// it defaults to "devel".
var Version = "devel"

// CookieName is the name of the cookie that holds the signed session token.
var CookieName = "inkwell-scribble-session"

// BasePrefix is a global prefix for all scribble endpoints. Can be emptied to
// remove the prefix entirely.
var BasePrefix = ""

// ForcedLanguage overrides the language picked from Accept-Language when set.
var ForcedLanguage = ""

const (
	// DefaultChallengeTTL is how long an issued challenge stays verifiable.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultSessionTTL is how long an access session (and its cookie) lives.
	DefaultSessionTTL = time.Hour

	// DefaultClassifierTimeout bounds a single classification call.
	DefaultClassifierTimeout = 3 * time.Second
)
