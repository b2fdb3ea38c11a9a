// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.lsp.dev/uri"
)

var (
	// ErrInvalidIdentifier is returned when a value cannot be turned into a resource identifier.
	ErrInvalidIdentifier = errors.New("invalid resource identifier")
	// ErrNotAFile is returned when a local path is requested for a non file resource.
	ErrNotAFile = errors.New("resource is not a file")
)

// Components is the URI-like structure used to transmit an identifier between processes.
type Components struct {
	Scheme    string `json:"scheme" yaml:"scheme"`
	Authority string `json:"authority,omitempty" yaml:"authority,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Query     string `json:"query,omitempty" yaml:"query,omitempty"`
	Fragment  string `json:"fragment,omitempty" yaml:"fragment,omitempty"`
}

// Identifier is the identity of a log target. Use String to obtain its canonical form
// before comparing or using it as a key.
type Identifier struct {
	Scheme    string
	Authority string
	Path      string
	Query     string
	Fragment  string
}

// Parse returns the identifier for s. Input without a scheme is handled as a
// filesystem path and converted into a file identifier.
func Parse(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}, fmt.Errorf("%w: empty value", ErrInvalidIdentifier)
	}

	parsed, err := url.Parse(s)
	if err != nil || len(parsed.Scheme) <= 1 {
		// single letter schemes are windows drive letters
		if strings.Contains(s, "://") {
			return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
		}
		return File(s), nil
	}

	return fromURL(parsed), nil
}

// MustParse is like Parse but panics on invalid input. It simplifies static declarations.
func MustParse(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// File returns the file identifier for the local path.
func File(path string) Identifier {
	parsed, err := url.Parse(string(uri.File(path)))
	if err != nil {
		return Identifier{Scheme: uri.FileScheme, Path: path}
	}

	return fromURL(parsed)
}

// FromComponents revives an identifier transmitted as its URI components.
func FromComponents(c Components) (Identifier, error) {
	scheme := strings.ToLower(strings.TrimSpace(c.Scheme))
	if scheme == "" {
		return Identifier{}, fmt.Errorf("%w: missing scheme", ErrInvalidIdentifier)
	}

	if err := validateAuthority(c.Authority); err != nil {
		return Identifier{}, err
	}

	return Identifier{
		Scheme:    scheme,
		Authority: c.Authority,
		Path:      c.Path,
		Query:     c.Query,
		Fragment:  c.Fragment,
	}, nil
}

// validateAuthority rejects authorities that would not survive a round trip through the canonical form.
func validateAuthority(authority string) error {
	if authority == "" {
		return nil
	}

	parsed, err := url.Parse("//" + authority)
	if err != nil || parsed.Host != authority || parsed.User != nil {
		return fmt.Errorf("%w: invalid authority %q", ErrInvalidIdentifier, authority)
	}
	return nil
}

func fromURL(u *url.URL) Identifier {
	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
		if unescaped, err := url.PathUnescape(u.Opaque); err == nil {
			path = unescaped
		}
	}

	return Identifier{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Path:      path,
		Query:     u.RawQuery,
		Fragment:  u.Fragment,
	}
}

// String returns the canonical form of the identifier.
func (id Identifier) String() string {
	if id.IsZero() {
		return ""
	}

	u := url.URL{
		Scheme:   id.Scheme,
		Host:     id.Authority,
		Path:     id.Path,
		RawQuery: id.Query,
		Fragment: id.Fragment,
	}

	if id.Authority == "" && id.Path != "" && !strings.HasPrefix(id.Path, "/") {
		u.Opaque = (&url.URL{Path: id.Path}).EscapedPath()
		u.Path = ""
	}

	return u.String()
}

// IsZero reports whether the identifier is unset.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}

// Equal reports whether id and other share the same canonical form.
func (id Identifier) Equal(other Identifier) bool {
	return id.String() == other.String()
}

// Components returns the transmissible form of the identifier.
func (id Identifier) Components() Components {
	return Components(id)
}

// Filename returns the local filesystem path of a file identifier.
func (id Identifier) Filename() (string, error) {
	if id.Scheme != uri.FileScheme || id.Path == "" {
		return "", fmt.Errorf("%w: %s", ErrNotAFile, id)
	}

	path := id.Path
	if isWindowsDrivePath(path) {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

// isWindowsDrivePath reports whether path has the /C: form used by file URIs on windows.
func isWindowsDrivePath(path string) bool {
	if len(path) < 3 || path[0] != '/' || path[2] != ':' {
		return false
	}
	c := path[1]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// MarshalJSON encodes the identifier as its canonical string.
func (id Identifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts both a URI string and the components object.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
		}

		parsed, err := Parse(value)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}

	var components Components
	if err := json.Unmarshal(data, &components); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}

	revived, err := FromComponents(components)
	if err != nil {
		return err
	}
	*id = revived
	return nil
}
