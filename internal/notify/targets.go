package notify

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// SecretMask replaces credentials when a target is logged or stored.
const SecretMask = "********"

// Redact returns a Shoutrrr URL safe to log: the scheme and host are kept,
// userinfo, path tokens and query values are masked.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return SecretMask
	}

	out := u.Scheme + "://"
	if u.User != nil {
		out += SecretMask + "@"
	}
	out += u.Host
	if strings.Trim(u.Path, "/") != "" {
		out += "/" + SecretMask
	}
	if u.RawQuery != "" {
		q := u.Query()
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k+"="+SecretMask)
		}
		sort.Strings(keys)
		out += "?" + strings.Join(keys, "&")
	}
	return out
}

// ValidateTargets checks that every URL at least parses with a scheme.
func ValidateTargets(urls []string) error {
	for i, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("notify target %d: %w", i+1, err)
		}
		if u.Scheme == "" {
			return fmt.Errorf("notify target %d: missing service scheme (e.g. discord://, telegram://)", i+1)
		}
	}
	return nil
}
