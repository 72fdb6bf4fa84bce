package session

// The backend authenticates with an httpOnly session cookie. Session
// owns the cookie jar, persists it across CLI runs, and exposes the
// reactive "who am I" state the mutation controller gates on.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chirp/internal/apiclient"
	"chirp/internal/logging"
	"chirp/internal/model"
)

type Session struct {
	client     *apiclient.Client
	jar        *cookiejar.Jar
	base       *url.URL
	cookiePath string

	mu      sync.Mutex
	user    *model.User
	loading bool
}

// storedCookie is the on-disk cookie shape.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// NewJar builds the cookie jar a Session and its API client share,
// preloaded from cookiePath when a previous run saved one.
func NewJar(rootURL, cookiePath string) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}
	if b, err := os.ReadFile(cookiePath); err == nil {
		var stored []storedCookie
		if err := json.Unmarshal(b, &stored); err == nil {
			cookies := make([]*http.Cookie, 0, len(stored))
			for _, sc := range stored {
				cookies = append(cookies, &http.Cookie{
					Name: sc.Name, Value: sc.Value, Path: sc.Path,
					Domain: sc.Domain, Expires: sc.Expires,
				})
			}
			jar.SetCookies(base, cookies)
		}
	}
	return jar, nil
}

// New wires a session around an already-constructed client and the jar
// it uses. The session starts in the loading state until Verify runs.
func New(client *apiclient.Client, jar *cookiejar.Jar, rootURL, cookiePath string) (*Session, error) {
	base, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}
	return &Session{client: client, jar: jar, base: base, cookiePath: cookiePath, loading: true}, nil
}

// Verify resolves the current user from the session cookie. It always
// clears the loading flag, whether or not a user came back.
func (s *Session) Verify(ctx context.Context) (model.User, error) {
	u, err := s.client.Verify(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.user = nil
		return model.User{}, err
	}
	s.user = &u
	return u, nil
}

// Login authenticates, persists the session cookie, and verifies.
func (s *Session) Login(ctx context.Context, email, password string) (model.User, error) {
	if _, err := s.client.Login(ctx, email, password); err != nil {
		return model.User{}, err
	}
	s.persistCookies()
	return s.Verify(ctx)
}

// Logout drops local session state and the persisted cookie file.
func (s *Session) Logout() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	if s.cookiePath != "" {
		_ = os.Remove(s.cookiePath)
	}
}

// CurrentUserID returns the authenticated user id, if any. The second
// return is false while unauthenticated or still loading.
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading || s.user == nil || s.user.ID == "" {
		return "", false
	}
	return s.user.ID, true
}

// Loading reports whether the initial verification is still pending.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// User returns a copy of the verified profile, if any.
func (s *Session) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return model.User{}, false
	}
	return *s.user, true
}

func (s *Session) persistCookies() {
	if s.cookiePath == "" || s.jar == nil {
		return
	}
	cookies := s.jar.Cookies(s.base)
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value, Path: c.Path, Domain: c.Domain, Expires: c.Expires})
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cookiePath), 0o755); err != nil {
		logging.Error("cookie_persist_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.WriteFile(s.cookiePath, b, 0o600); err != nil {
		logging.Error("cookie_persist_failed", map[string]any{"error": err.Error()})
	}
}
