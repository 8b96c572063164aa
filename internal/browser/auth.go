package browser

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Cookie is one stored session cookie, replayed into the browser before
// navigation and onto the media download client.
type Cookie struct {
	Name     string `toml:"name"`
	Value    string `toml:"value"`
	Domain   string `toml:"domain"`
	Path     string `toml:"path"`
	Expires  int64  `toml:"expires"` // unix seconds, 0 = session cookie
	Secure   bool   `toml:"secure"`
	HTTPOnly bool   `toml:"http_only"`
}

// AuthState holds the saved login state for a feed.
type AuthState struct {
	Cookies []Cookie `toml:"cookies"`
}

// LoadAuthState reads an auth-state TOML file. A missing path is not an
// error; it means the run is unauthenticated.
func LoadAuthState(path string) (*AuthState, error) {
	if path == "" {
		return &AuthState{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth state file %s: %w", path, err)
	}

	var state AuthState
	if err := toml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse auth state file %s: %w", path, err)
	}

	for i, c := range state.Cookies {
		if c.Name == "" {
			return nil, fmt.Errorf("auth state file %s: cookie %d has no name", path, i)
		}
		if state.Cookies[i].Path == "" {
			state.Cookies[i].Path = "/"
		}
	}
	return &state, nil
}

// HTTPCookies converts the stored cookies for use on a cookie jar, dropping
// any that have already expired.
func (a *AuthState) HTTPCookies() []*http.Cookie {
	now := time.Now().Unix()
	out := make([]*http.Cookie, 0, len(a.Cookies))
	for _, c := range a.Cookies {
		if c.Expires > 0 && c.Expires < now {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(c.Expires, 0)
		}
		out = append(out, hc)
	}
	return out
}
