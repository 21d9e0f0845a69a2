// Package profile stores the GitHub connection settings the blog service
// works against: repository owner, name, branch and access token.
package profile

import (
	"errors"
	"fmt"
	"os"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/inkwell/internal/apperr"
	pkgconfig "github.com/starford/inkwell/pkg/config"
)

const (
	// DefaultAPIURL is used when Profile.APIURL is empty.
	DefaultAPIURL = "https://api.github.com/"
	// RedactedToken replaces the token in Redacted copies.
	RedactedToken = "***"
)

// Profile is the remote repository a blog service reads and writes.
type Profile struct {
	Owner  string `yaml:"owner" json:"owner"`
	Repo   string `yaml:"repo" json:"repo"`
	Branch string `yaml:"branch" json:"branch"`
	Token  string `yaml:"token" json:"token"`
	// APIURL overrides the GitHub REST endpoint (GitHub Enterprise, tests).
	APIURL string `yaml:"api_url,omitempty" json:"apiUrl,omitempty"`
}

// Check reports apperr.ErrInvalidConfig unless owner, repo, branch and token
// are all set. It is not named Validate so that loading an incomplete
// profile from disk never fails.
func (p Profile) Check() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Owner, validation.Required),
		validation.Field(&p.Repo, validation.Required),
		validation.Field(&p.Branch, validation.Required),
		validation.Field(&p.Token, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidConfig, err)
	}
	return nil
}

// Endpoint returns the API base URL with a trailing slash.
func (p Profile) Endpoint() string {
	u := p.APIURL
	if u == "" {
		return DefaultAPIURL
	}
	if u[len(u)-1] != '/' {
		u += "/"
	}
	return u
}

// Redacted returns a copy safe to log.
func (p Profile) Redacted() Profile {
	if p.Token != "" {
		p.Token = RedactedToken
	}
	return p
}

// KeepToken returns p with its token taken from cur when p carries none or
// only the redacted placeholder.
func (p Profile) KeepToken(cur Profile) Profile {
	if p.Token == "" || p.Token == RedactedToken {
		p.Token = cur.Token
	}
	return p
}

// Store persists a Profile as a YAML file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the profile. A missing file is created empty and yields a
// zero Profile.
func (s *Store) Load() (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p Profile
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := pkgconfig.Save(s.path, &p, 0o600); err != nil {
			return Profile{}, fmt.Errorf("profile: create %s: %w", s.path, err)
		}
		return p, nil
	}
	if err := pkgconfig.Read(s.path, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}
	return p, nil
}

// Save replaces the stored profile.
func (s *Store) Save(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := pkgconfig.Save(s.path, &p, 0o600); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	return nil
}
