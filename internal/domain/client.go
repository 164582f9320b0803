package domain

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrClientNotFound is returned when no client matches the requested id.
	ErrClientNotFound = errors.New("client not found")
	// ErrInvalidClient is returned when a client fails validation.
	ErrInvalidClient = errors.New("invalid client")
)

// Client is a customer record shown on the clients view.
type Client struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
	Source    Source `json:"source"`
}

// Validate checks the fields a client form requires.
func (c Client) Validate() error {
	var errs []error

	if strings.TrimSpace(c.FirstName) == "" {
		errs = append(errs, errors.New("first name is required"))
	}

	if strings.TrimSpace(c.LastName) == "" {
		errs = append(errs, errors.New("last name is required"))
	}

	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != strings.TrimSpace(c.Email) {
		errs = append(errs, errors.New("a valid email is required"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidClient}, errs...)...)
	}

	return nil
}

// IsLocal reports whether the client was created locally.
func (c Client) IsLocal() bool {
	return c.Source == SourceLocal
}

// Matches reports whether any searchable field contains the lowercase query.
func (c Client) Matches(query string) bool {
	for _, field := range []string{c.FirstName, c.LastName, c.Email, c.Username} {
		if field != "" && strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}

	return false
}

// ClientsState is a snapshot of the client store.
type ClientsState struct {
	Items   []Client `json:"items"`
	Loading bool     `json:"loading"`
	Error   string   `json:"error,omitempty"`
}
