// Subscriber email validation.
//
// Queue rows store subscriber addresses as plain strings, so the worker
// re-validates each address when it dequeues a row: data edited or imported
// out-of-band must not reach the email transport. The same check guards the
// sign-up path.
package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidEmail is returned when an address fails RFC 5322 validation.
var ErrInvalidEmail = errors.New("email address is not valid")

var emailValidate = validator.New()

// SubscriberEmail is a validated subscriber address. The zero value is not
// valid; construct through NewSubscriberEmail.
type SubscriberEmail string

// NewSubscriberEmail validates and normalizes (trims) an email address.
func NewSubscriberEmail(raw string) (SubscriberEmail, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidEmail
	}
	if err := emailValidate.Var(s, "email"); err != nil {
		return "", ErrInvalidEmail
	}
	return SubscriberEmail(s), nil
}

// String returns the underlying address.
func (e SubscriberEmail) String() string { return string(e) }
