package urlsvc

import (
	"net/url"
	"strings"

	"github.com/shortlyhq/shortly/internal/apierr"
)

// canonicalize enforces the narrow URL shape this service accepts: http or
// https only, the exact "scheme://" form, fragment stripped, host
// lowercased. Path, query, and userinfo pass through unmodified.
func canonicalize(raw string) (string, error) {
	schemeEnd := strings.Index(raw, ":")
	if schemeEnd < 0 {
		return "", apierr.Unprocessablef("Unsupported scheme: %s", raw)
	}
	scheme := raw[:schemeEnd]
	if scheme != "http" && scheme != "https" {
		return "", apierr.Unprocessablef("Unsupported scheme: %s", scheme)
	}

	rest := raw[schemeEnd+1:]
	if !strings.HasPrefix(rest, "//") || strings.HasPrefix(rest, "///") {
		return "", apierr.Unprocessablef("Wrong number of slashes after scheme: %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", apierr.Unprocessablef("Malformed URL")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)

	return u.String(), nil
}
