package transcription

import (
	"fmt"
	"net/url"
)

// DefaultPath is the resource the transcription service listens on
const DefaultPath = "/transcribe"

// Endpoint rewrites a page origin into the websocket URL of the link:
// http becomes ws, https becomes wss, the host is kept and path replaces
// anything after it.
func Endpoint(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", origin, err)
	}

	var scheme string
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	if path == "" {
		path = DefaultPath
	}
	if path[0] != '/' {
		path = "/" + path
	}

	return (&url.URL{Scheme: scheme, Host: u.Host, Path: path}).String(), nil
}
