package web

import (
	"net/url"
	"strings"
)

// Resolve turns a link found on the page at base into an absolute url. It
// returns nil when no crawlable url can be made from the link.
//
// This is a heuristic, not RFC 3986 reference resolution. Path-only links
// are always resolved from the root of the base url's host, so "y" and "/y"
// on "https://a.example/dir/" both become "https://a.example/y", and the
// link's query string and fragment are dropped. The base url's port is
// kept, so links on "http://localhost:8080/" stay on port 8080. Resolving
// from the bare hostname would send them to the scheme's default port.
func Resolve(base *url.URL, candidate string) *url.URL {
	switch {
	case candidate == "", candidate == "#":
		// "#" is the same page with no target
		return nil
	case strings.HasPrefix(candidate, "//"):
		if base == nil || base.Scheme == "" {
			return nil
		}
		return parse(base.Scheme + ":" + candidate)
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil
	}
	if u.IsAbs() {
		return u
	}
	scheme, host := u.Scheme, u.Host
	if base != nil {
		if scheme == "" {
			scheme = base.Scheme
		}
		if host == "" {
			host = base.Host
		}
	}
	if scheme == "" || host == "" {
		return nil
	}
	path := u.EscapedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return parse(scheme + "://" + host + path)
}

func parse(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}
	return u
}
