package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"chirp/internal/apiclient"
)

// authServer fakes the backend's cookie auth: /api/v1/auth sets the
// session cookie, /api/v1/verify answers based on its presence.
func authServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok42", Path: "/"})
			io.WriteString(w, `{"message":"ok"}`)
		case "/api/v1/verify":
			if ck, err := r.Cookie("session"); err == nil && ck.Value == "tok42" {
				io.WriteString(w, `{"success":true,"user":{"_id":"u1","userName":"ada"}}`)
				return
			}
			io.WriteString(w, `{"success":false}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, rootURL, cookiePath string) *Session {
	t.Helper()
	jar, err := NewJar(rootURL, cookiePath)
	if err != nil {
		t.Fatal(err)
	}
	client := apiclient.New(rootURL, jar)
	s, err := New(client, jar, rootURL, cookiePath)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoginVerifiesAndExposesUser(t *testing.T) {
	srv := authServer(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.json")
	s := newSession(t, srv.URL, cookiePath)

	if !s.Loading() {
		t.Fatal("session should start in the loading state")
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Fatal("no user before verification")
	}

	u, err := s.Login(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" {
		t.Fatalf("user: %+v", u)
	}
	if s.Loading() {
		t.Fatal("loading must clear after verify")
	}
	uid, ok := s.CurrentUserID()
	if !ok || uid != "u1" {
		t.Fatalf("CurrentUserID: %q %v", uid, ok)
	}
	if _, err := os.Stat(cookiePath); err != nil {
		t.Fatalf("cookie file not persisted: %v", err)
	}
}

func TestCookiePersistsAcrossSessions(t *testing.T) {
	srv := authServer(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.json")

	first := newSession(t, srv.URL, cookiePath)
	if _, err := first.Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	// a fresh session loads the saved jar and verifies without login
	second := newSession(t, srv.URL, cookiePath)
	u, err := second.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" {
		t.Fatalf("restored session user: %+v", u)
	}
}

func TestVerifyWithoutCookieFails(t *testing.T) {
	srv := authServer(t)
	s := newSession(t, srv.URL, filepath.Join(t.TempDir(), "cookies.json"))
	if _, err := s.Verify(context.Background()); err == nil {
		t.Fatal("verify must fail without a session cookie")
	}
	if s.Loading() {
		t.Fatal("loading must clear even on failure")
	}
	if _, ok := s.CurrentUserID(); ok {
		t.Fatal("no user after failed verify")
	}
}

func TestLogoutDropsStateAndCookieFile(t *testing.T) {
	srv := authServer(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.json")
	s := newSession(t, srv.URL, cookiePath)
	if _, err := s.Login(context.Background(), "ada@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	s.Logout()
	if _, ok := s.CurrentUserID(); ok {
		t.Fatal("user must be gone after logout")
	}
	if _, err := os.Stat(cookiePath); !os.IsNotExist(err) {
		t.Fatalf("cookie file should be removed, stat err = %v", err)
	}
}
