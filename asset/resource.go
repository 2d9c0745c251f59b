package asset

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// A Resource wraps a scene file, material library or included model that is
// streamed from the local filesystem or over http(s).
type Resource struct {
	io.ReadCloser
	url *url.URL
}

// Returns the path to this resource.
func (r *Resource) Path() string {
	return r.url.String()
}

// Returns the base name of the resource; for remote resources the query
// string is ignored.
func (r *Resource) Name() string {
	if r.IsRemote() {
		return filepath.Base(r.url.Path)
	}
	return filepath.Base(r.Path())
}

// Returns true if the Resource is streamed over http/https.
func (r *Resource) IsRemote() bool {
	return r.url.Scheme == "http" || r.url.Scheme == "https"
}

// Open a resource. If relTo is specified and pathToResource does not define a
// scheme, the path is resolved relative to the directory containing relTo.
// Scene files use this to reference material libraries and models stored
// next to them.
//
// The caller must close the returned resource.
func NewResource(pathToResource string, relTo *Resource) (*Resource, error) {
	// Windows exporters tend to emit backslashes
	loc, err := url.Parse(strings.Replace(pathToResource, `\`, `/`, -1))
	if err != nil {
		return nil, fmt.Errorf("resource: invalid path %q: %w", pathToResource, err)
	}

	if loc.Scheme == "" && relTo != nil && !filepath.IsAbs(loc.Path) {
		relPath := loc.Path
		loc, _ = url.Parse(relTo.url.String())
		prefix := loc.Path
		if loc.Scheme == "" || loc.Scheme == "file" {
			prefix, err = filepath.Abs(loc.Path)
			if err != nil {
				return nil, fmt.Errorf("resource: could not detect abs path for %s: %w", relTo.Path(), err)
			}
		}
		loc.Path = filepath.Dir(prefix) + "/" + relPath
	}

	var reader io.ReadCloser
	switch loc.Scheme {
	case "", "file":
		reader, err = os.Open(filepath.Clean(loc.Path))
		if err != nil {
			return nil, fmt.Errorf("resource: %w", err)
		}
	case "http", "https":
		resp, err := http.Get(loc.String())
		if err != nil {
			return nil, fmt.Errorf("resource: could not fetch '%s': %w", loc.String(), err)
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("resource: could not fetch '%s': status %d", loc.String(), resp.StatusCode)
		}
		reader = resp.Body
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", loc.Scheme)
	}

	return &Resource{
		ReadCloser: reader,
		url:        loc,
	}, nil
}

// Wrap an in-memory stream. The name is used for error reporting and for
// resolving resources relative to this one.
func NewResourceFromStream(name string, source io.Reader) *Resource {
	loc, err := url.Parse(name)
	if err != nil {
		loc = &url.URL{Path: name}
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		url:        loc,
	}
}
