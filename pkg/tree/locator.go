package tree

import (
	"fmt"
	"net/url"
	"strings"
)

// LocatorScheme is the URI scheme of addressable locations.
const LocatorScheme = "overleaf"

// Locator addresses an entity of a project on a server:
//
//	overleaf://<server>/<project name>/<folder>/.../<leaf>?user=<user id>&project=<project id>
type Locator struct {
	Server      string
	UserID      string
	ProjectID   string
	ProjectName string
	Segments    []string
}

func ParseLocator(raw string) (*Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid locator %q: %w", raw, err)
	}
	if u.Scheme != LocatorScheme {
		return nil, fmt.Errorf("invalid locator %q: scheme must be %s", raw, LocatorScheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid locator %q: missing server", raw)
	}

	q := u.Query()
	loc := &Locator{
		Server:    u.Host,
		UserID:    q.Get("user"),
		ProjectID: q.Get("project"),
	}
	if loc.ProjectID == "" {
		return nil, fmt.Errorf("invalid locator %q: missing project id", raw)
	}

	parts := SplitPath(u.Path)
	if len(parts) > 0 {
		loc.ProjectName = parts[0]
		loc.Segments = parts[1:]
	}
	return loc, nil
}

// Path is the "/"-joined segment path inside the project.
func (l *Locator) Path() string {
	return "/" + strings.Join(l.Segments, "/")
}

func (l *Locator) String() string {
	u := url.URL{
		Scheme: LocatorScheme,
		Host:   l.Server,
		Path:   "/" + strings.Join(append([]string{l.ProjectName}, l.Segments...), "/"),
	}
	q := url.Values{}
	if l.UserID != "" {
		q.Set("user", l.UserID)
	}
	q.Set("project", l.ProjectID)
	u.RawQuery = q.Encode()
	return u.String()
}
