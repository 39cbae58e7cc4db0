package auth

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
)

// GetAllowedOriginsFromEnv reads a comma-separated origin allow-list from the
// environment, falling back to defaultEnvs when the variable is unset.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	// Example: ALLOWED_ORIGINS="http://localhost:3000,https://your-app.com"
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		// Provide sensible defaults for local development if the env var isn't set.
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// AllowedOrigins answers whether a browser Origin header may open a socket.
// Three entry forms are recognized:
//   - a full origin ("https://app.example.com"), matched exactly
//   - a bare hostname ("app.example.com"), matched against the origin's host
//   - a ".suffix" (".example.com"), matching hosts exactly one label below it,
//     so "app.example.com" passes but "deep.app.example.com" does not
type AllowedOrigins struct {
	entries []string
}

// NewAllowedOrigins normalizes entries (lowercase, trimmed, no trailing
// slash) and returns the matcher. An empty list allows nothing.
func NewAllowedOrigins(entries []string) *AllowedOrigins {
	normalized := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		e = strings.TrimSuffix(e, "/")
		if e != "" {
			normalized = append(normalized, e)
		}
	}
	return &AllowedOrigins{entries: normalized}
}

// Entries returns the normalized allow-list, in the form the CORS layer
// consumes.
func (a *AllowedOrigins) Entries() []string {
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

// Allows reports whether origin matches the allow-list. Unparseable origins
// never match.
func (a *AllowedOrigins) Allows(origin string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	host := u.Hostname()

	for _, entry := range a.entries {
		switch {
		case strings.HasPrefix(entry, "."):
			rest, found := strings.CutSuffix(host, entry)
			if found && rest != "" && !strings.Contains(rest, ".") {
				return true
			}
		case strings.Contains(entry, "://"):
			if origin == entry {
				return true
			}
		default:
			if host == entry {
				return true
			}
		}
	}
	return false
}
