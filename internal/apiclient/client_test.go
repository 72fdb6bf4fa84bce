package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chirp/internal/model"
)

type nopLimiter struct{}

func (nopLimiter) Wait(ctx context.Context) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL, nil)
	c.SetLimiter(nopLimiter{})
	return c, srv
}

func TestEnvelopeUnwrapped(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true,"data":{"action":"done"},"message":"ok"}`)
	})
	raw, err := c.Retweet(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"action":"done"}` {
		t.Fatalf("unwrapped payload = %s", raw)
	}
}

func TestBarePayloadPassedThrough(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"_id":"p1","body":"hi"}`)
	})
	raw, err := c.Like(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m["_id"] != "p1" {
		t.Fatalf("bare payload mangled: %s", raw)
	}
}

func TestErrorMessagePriority(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"server message wins", `{"message":"tweet not found","error":"db gone"}`, "tweet not found"},
		{"error field second", `{"error":"db gone"}`, "db gone"},
		{"fallback last", `not even json`, "request failed with status 500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, tc.body)
			})
			_, err := c.Like(context.Background(), "p1")
			var re *RequestError
			if !errors.As(err, &re) {
				t.Fatalf("err = %v, want *RequestError", err)
			}
			if re.Message != tc.want || re.Status != http.StatusInternalServerError {
				t.Fatalf("got %q (status %d), want %q", re.Message, re.Status, tc.want)
			}
		})
	}
}

func TestMutationPathsAndMethods(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotBody = nil
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			if len(b) > 0 {
				json.Unmarshal(b, &gotBody)
			}
		}
		io.WriteString(w, `{}`)
	})
	ctx := context.Background()

	calls := []struct {
		run       func() error
		method    string
		path      string
		bodyField string
		bodyValue string
	}{
		{func() error { _, e := c.Like(ctx, "p1"); return e }, "POST", "/api/v1/tweets/p1/like", "", ""},
		{func() error { _, e := c.Unlike(ctx, "p1"); return e }, "POST", "/api/v1/tweets/p1/unlike", "", ""},
		{func() error { _, e := c.Retweet(ctx, "p1"); return e }, "POST", "/api/v1/tweets/p1/retweet", "", ""},
		{func() error { _, e := c.Quote(ctx, "p1", "take"); return e }, "POST", "/api/v1/tweets/p1/quote", "text", "take"},
		{func() error { _, e := c.AddComment(ctx, "p1", "hi"); return e }, "POST", "/api/v1/tweets/p1/comment", "text", "hi"},
		{func() error { _, e := c.UpdateComment(ctx, "p1", "c1", "hm"); return e }, "PUT", "/api/v1/tweets/p1/comment/c1", "text", "hm"},
		{func() error { _, e := c.SoftDeleteComment(ctx, "p1", "c1"); return e }, "DELETE", "/api/v1/tweets/p1/comment/c1/soft", "", ""},
		{func() error { _, e := c.ReplyToComment(ctx, "p1", "c1", "yo"); return e }, "POST", "/api/v1/tweets/p1/comments/c1/replies", "text", "yo"},
		{func() error { _, e := c.ToggleCommentLike(ctx, "p1", "c1"); return e }, "POST", "/api/v1/tweets/p1/comments/c1/like", "", ""},
		{func() error { _, e := c.UpdatePost(ctx, "p1", "edited"); return e }, "PUT", "/api/v1/tweets/p1", "tweet", "edited"},
		{func() error { _, e := c.DeletePost(ctx, "p1"); return e }, "DELETE", "/api/v1/tweets/p1", "", ""},
		{func() error { _, e := c.ToggleFollow(ctx, "u2"); return e }, "POST", "/api/v1/user/follow/u2/toggle", "", ""},
	}
	for _, tc := range calls {
		if err := tc.run(); err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if gotMethod != tc.method || gotPath != tc.path {
			t.Fatalf("got %s %s, want %s %s", gotMethod, gotPath, tc.method, tc.path)
		}
		if tc.bodyField != "" && gotBody[tc.bodyField] != tc.bodyValue {
			t.Fatalf("%s: body[%s] = %q, want %q", tc.path, tc.bodyField, gotBody[tc.bodyField], tc.bodyValue)
		}
	}
}

func TestQuoteWithImageMultipart(t *testing.T) {
	var text, filename, content string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			t.Errorf("content type: %v %v", mt, err)
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		form, err := mr.ReadForm(1 << 20)
		if err != nil {
			t.Fatal(err)
		}
		text = form.Value["text"][0]
		fh := form.File["quoteImage"][0]
		filename = fh.Filename
		f, _ := fh.Open()
		b, _ := io.ReadAll(f)
		content = string(b)
		io.WriteString(w, `{}`)
	})
	_, err := c.QuoteWithImage(context.Background(), "p1", "hot take", "pic.png", strings.NewReader("pngbytes"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hot take" || filename != "pic.png" || content != "pngbytes" {
		t.Fatalf("multipart fields: text=%q file=%q content=%q", text, filename, content)
	}
}

func TestCreatePostWithImageFieldNames(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			t.Fatal(err)
		}
		form, err := mr.ReadForm(1 << 20)
		if err != nil {
			t.Fatal(err)
		}
		if form.Value["tweet"][0] != "with pic" {
			t.Errorf("tweet field: %v", form.Value)
		}
		if len(form.File["tweetImage"]) != 1 {
			t.Errorf("tweetImage file missing: %v", form.File)
		}
		io.WriteString(w, `{}`)
	})
	if _, err := c.CreatePostWithImage(context.Background(), "with pic", "a.jpg", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
}

func TestRequestIDHeaderSet(t *testing.T) {
	var hdr string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Get("X-Request-ID")
		io.WriteString(w, `{}`)
	})
	if _, err := c.Like(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if hdr == "" {
		t.Fatal("X-Request-ID not set")
	}
}

func TestFetchPostByIDRejectsMalformed(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"nothing":"useful"}`)
	})
	if _, err := c.FetchPostByID(context.Background(), "p1"); err == nil {
		t.Fatal("payload without an id must be rejected")
	}
}

func TestVerifyParsesWrappedUser(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verify" {
			t.Errorf("path %s", r.URL.Path)
		}
		io.WriteString(w, `{"success":true,"user":{"_id":"u1","userName":"ada"}}`)
	})
	u, err := c.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.UserName != "ada" {
		t.Fatalf("user: %+v", u)
	}
}

func TestVerifyRejectsUnauthenticated(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"user":{"_id":""}}`)
	})
	if _, err := c.Verify(context.Background()); err == nil {
		t.Fatal("expected not-authenticated error")
	}
}

func TestSessionCookieCarriedAcrossCalls(t *testing.T) {
	var sawCookie bool
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok123", Path: "/"})
			io.WriteString(w, `{"message":"welcome"}`)
		default:
			if ck, err := r.Cookie("session"); err == nil && ck.Value == "tok123" {
				sawCookie = true
			}
			io.WriteString(w, `{}`)
		}
	})
	if _, err := c.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Like(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}
	if !sawCookie {
		t.Fatal("session cookie not replayed")
	}
}

func TestUserReadEndpoints(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method %s for %s", r.Method, r.URL.Path)
		}
		switch r.URL.Path {
		case "/api/v1/user/u1/followers", "/api/v1/user/u1/following":
			io.WriteString(w, `{"success":true,"data":[{"_id":"u2","userName":"bob"},{"_id":"u3","userName":"eve"}]}`)
		case "/api/v1/tweets/user/u1/retweets", "/api/v1/tweets/user/u1/quotes":
			io.WriteString(w, `[{"_id":"p1","body":"one"},{"_id":"p2","tweet":"two"}]`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	for _, get := range []func(context.Context, string) ([]model.User, error){c.GetFollowers, c.GetFollowing} {
		users, err := get(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 2 || users[0].ID != "u2" || users[1].UserName != "eve" {
			t.Fatalf("users: %+v", users)
		}
	}
	for _, get := range []func(context.Context, string) ([]model.Post, error){c.GetUserRetweets, c.GetUserQuotes} {
		posts, err := get(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 2 || posts[0].ID != "p1" || posts[1].Body != "two" {
			t.Fatalf("posts: %+v", posts)
		}
	}
}

func TestDeleteQuotePath(t *testing.T) {
	var gotMethod, gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		io.WriteString(w, `{}`)
	})
	if _, err := c.DeleteQuote(context.Background(), "q1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/v1/tweets/q1/quote" {
		t.Fatalf("got %s %s", gotMethod, gotPath)
	}
}

func TestIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"gone"}`)
	})
	_, err := c.FetchPostByID(context.Background(), "p404")
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound = false for %v", err)
	}
}
