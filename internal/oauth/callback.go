package oauth

import (
	"net/url"
	"strings"
)

// CallbackResult is the parsed outcome of an OAuth redirect.
type CallbackResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	State   string `json:"state,omitempty"`
	Err     string `json:"error,omitempty"`
}

// ParseCallbackURL extracts the authorization code from a redirect URL.
// Precedence is fixed: empty input, unparsable URL, explicit error parameter
// (which wins even when a code is also present), missing code, success.
func ParseCallbackURL(raw string) CallbackResult {
	if strings.TrimSpace(raw) == "" {
		return CallbackResult{Err: "URL cannot be empty"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return CallbackResult{Err: "invalid callback URL: " + err.Error()}
	}

	q := u.Query()

	if errParam := q.Get("error"); errParam != "" {
		msg := errParam
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		return CallbackResult{Err: msg}
	}

	code := q.Get("code")
	if code == "" {
		return CallbackResult{Err: "callback URL contains no authorization code"}
	}

	return CallbackResult{
		Success: true,
		Code:    code,
		State:   q.Get("state"),
	}
}

// IsCallbackURL reports whether raw is the registered callback. With an
// expected base, hostname, port, and path must all match exactly; the query
// string is ignored. Without one, any loopback address with a /callback path
// counts.
func IsCallbackURL(raw, expectedBase string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if expectedBase != "" {
		base, err := url.Parse(expectedBase)
		if err != nil {
			return false
		}
		return u.Hostname() == base.Hostname() &&
			u.Port() == base.Port() &&
			u.Path == base.Path
	}

	return isLoopbackHost(u.Hostname()) && strings.Contains(u.Path, "/callback")
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
