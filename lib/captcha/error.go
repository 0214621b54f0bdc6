package captcha

import (
	"fmt"
)

// Error separates what the client is told from what gets logged.
type Error struct {
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func NewError(verb string, outcome Outcome, privateReason error) *Error {
	return &Error{
		Verb:          verb,
		PublicReason:  outcome.MessageID(),
		PrivateReason: privateReason,
		StatusCode:    outcome.StatusCode(),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("captcha: error when verifying challenge: %s: %v", e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() error {
	return e.PrivateReason
}
