package ws

import (
	"fmt"
	"unicode/utf8"
)

// MaxUsernameLength bounds the username a client may claim, in characters.
const MaxUsernameLength = 32

// Hello is the first message a client sends after connecting.
type Hello struct {
	Username string `json:"username"`
}

// Validate checks the requested username.
func (h Hello) Validate() error {
	if h.Username == "" {
		return fmt.Errorf("%w: username is required", ErrBadHello)
	}
	if utf8.RuneCountInString(h.Username) > MaxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", ErrBadHello, MaxUsernameLength)
	}
	return nil
}
