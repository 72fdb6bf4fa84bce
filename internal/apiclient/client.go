package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"chirp/internal/metrics"
	"chirp/internal/model"

	"github.com/google/uuid"
)

// API is the surface the mutation controller depends on. Every method
// that mutates server state returns the raw reconcilable payload; the
// caller decides how to merge it.
type API interface {
	Like(ctx context.Context, postID string) (json.RawMessage, error)
	Unlike(ctx context.Context, postID string) (json.RawMessage, error)
	Retweet(ctx context.Context, postID string) (json.RawMessage, error)
	Quote(ctx context.Context, postID, text string) (json.RawMessage, error)
	AddComment(ctx context.Context, postID, text string) (json.RawMessage, error)
	UpdateComment(ctx context.Context, postID, commentID, text string) (json.RawMessage, error)
	SoftDeleteComment(ctx context.Context, postID, commentID string) (json.RawMessage, error)
	ReplyToComment(ctx context.Context, postID, commentID, text string) (json.RawMessage, error)
	ToggleCommentLike(ctx context.Context, postID, commentID string) (json.RawMessage, error)
	UpdatePost(ctx context.Context, postID, text string) (json.RawMessage, error)
	DeletePost(ctx context.Context, postID string) (json.RawMessage, error)
	FetchPostByID(ctx context.Context, postID string) (model.Post, error)
	ToggleFollow(ctx context.Context, userID string) (model.FollowOutcome, error)
	GetUserProfile(ctx context.Context, userID string) (model.User, error)
}

// RequestError is the normalized failure shape for every call. Status
// is zero when the failure never produced an HTTP response.
type RequestError struct {
	Message string
	Status  int
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

// Client is a cookie-session HTTP client for the chirp backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    Limiter
}

// Limiter is satisfied by *rate.Limiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// New builds a client rooted at baseURL (no trailing slash needed).
// The cookie jar carries the session across calls; pass nil to get a
// fresh in-memory jar.
func New(baseURL string, jar http.CookieJar) *Client {
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	return &Client{
		baseURL:    trimSlashes(baseURL),
		httpClient: &http.Client{Timeout: 15 * time.Second, Jar: jar},
		limiter:    newDefaultLimiter(),
	}
}

// SetLimiter replaces the default rate limiter.
func (c *Client) SetLimiter(l Limiter) { c.limiter = l }

// SetTimeout replaces the default request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// envelope is the backend's optional wrapper. Payloads may also arrive
// bare; both are tolerated.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Err     string          `json:"error"`
}

func unwrap(body []byte) json.RawMessage {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return body
}

// failMessage extracts a human-readable message from an error response,
// in priority order: server message, server error, fallback.
func failMessage(body []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Err != "" {
			return env.Err
		}
	}
	return fallback
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body any) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &RequestError{Message: err.Error()}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(endpoint, req)
}

func (c *Client) doMultipart(ctx context.Context, endpoint, path string, fields map[string]string, fileField, filename string, file io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, &RequestError{Message: err.Error()}
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			return nil, &RequestError{Message: err.Error()}
		}
		if _, err := io.Copy(fw, file); err != nil {
			return nil, &RequestError{Message: err.Error()}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(endpoint, req)
}

func (c *Client) send(endpoint string, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	metrics.IncRequest(endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncRequestError(endpoint)
		return nil, &RequestError{Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncRequestError(endpoint)
		return nil, &RequestError{Message: err.Error(), Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		metrics.IncRequestError(endpoint)
		return nil, &RequestError{
			Message: failMessage(raw, fmt.Sprintf("request failed with status %d", resp.StatusCode)),
			Status:  resp.StatusCode,
		}
	}
	return unwrap(raw), nil
}

func tweetPath(parts ...string) string {
	p := "/api/v1/tweets"
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func userPath(parts ...string) string {
	p := "/api/v1/user"
	for _, s := range parts {
		p += "/" + url.PathEscape(s)
	}
	return p
}

/* ---------- Posts ---------- */

// CreatePost publishes a new text-only post.
func (c *Client) CreatePost(ctx context.Context, text string) (json.RawMessage, error) {
	return c.do(ctx, "create_post", http.MethodPost, tweetPath(), map[string]string{"tweet": text})
}

// CreatePostWithImage publishes a post with an attached image.
func (c *Client) CreatePostWithImage(ctx context.Context, text, filename string, image io.Reader) (json.RawMessage, error) {
	return c.doMultipart(ctx, "create_post", tweetPath(), map[string]string{"tweet": text}, "tweetImage", filename, image)
}

// GetTweets returns the home feed.
func (c *Client) GetTweets(ctx context.Context) ([]model.Post, error) {
	raw, err := c.do(ctx, "get_tweets", http.MethodGet, tweetPath(), nil)
	if err != nil {
		return nil, err
	}
	return decodePosts(raw)
}

// FetchPostByID returns the canonical current state of one post. Used
// by the controller as the reconciliation fallback.
func (c *Client) FetchPostByID(ctx context.Context, postID string) (model.Post, error) {
	raw, err := c.do(ctx, "fetch_post", http.MethodGet, tweetPath(postID), nil)
	if err != nil {
		return model.Post{}, err
	}
	var p model.Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Post{}, &RequestError{Message: err.Error()}
	}
	if p.ID == "" {
		return model.Post{}, &RequestError{Message: "malformed post payload"}
	}
	return p, nil
}

func (c *Client) UpdatePost(ctx context.Context, postID, text string) (json.RawMessage, error) {
	return c.do(ctx, "update_post", http.MethodPut, tweetPath(postID), map[string]string{"tweet": text})
}

func (c *Client) DeletePost(ctx context.Context, postID string) (json.RawMessage, error) {
	return c.do(ctx, "delete_post", http.MethodDelete, tweetPath(postID), nil)
}

/* ---------- Like / Retweet / Quote ---------- */

// Like and Unlike are explicit directional calls; the caller picks the
// direction from its local liked state.
func (c *Client) Like(ctx context.Context, postID string) (json.RawMessage, error) {
	return c.do(ctx, "like", http.MethodPost, tweetPath(postID, "like"), nil)
}

func (c *Client) Unlike(ctx context.Context, postID string) (json.RawMessage, error) {
	return c.do(ctx, "unlike", http.MethodPost, tweetPath(postID, "unlike"), nil)
}

// Retweet hits the single toggle endpoint; the server reports which way
// it went via an action marker in the payload.
func (c *Client) Retweet(ctx context.Context, postID string) (json.RawMessage, error) {
	return c.do(ctx, "retweet", http.MethodPost, tweetPath(postID, "retweet"), nil)
}

func (c *Client) Quote(ctx context.Context, postID, text string) (json.RawMessage, error) {
	return c.do(ctx, "quote", http.MethodPost, tweetPath(postID, "quote"), map[string]string{"text": text})
}

// QuoteWithImage quotes a post with commentary and an attached image.
func (c *Client) QuoteWithImage(ctx context.Context, postID, text, filename string, image io.Reader) (json.RawMessage, error) {
	return c.doMultipart(ctx, "quote", tweetPath(postID, "quote"), map[string]string{"text": text}, "quoteImage", filename, image)
}

func (c *Client) DeleteQuote(ctx context.Context, quoteID string) (json.RawMessage, error) {
	return c.do(ctx, "delete_quote", http.MethodDelete, tweetPath(quoteID, "quote"), nil)
}

/* ---------- Comments & replies ---------- */

func (c *Client) AddComment(ctx context.Context, postID, text string) (json.RawMessage, error) {
	return c.do(ctx, "add_comment", http.MethodPost, tweetPath(postID, "comment"), map[string]string{"text": text})
}

func (c *Client) UpdateComment(ctx context.Context, postID, commentID, text string) (json.RawMessage, error) {
	return c.do(ctx, "update_comment", http.MethodPut, tweetPath(postID, "comment", commentID), map[string]string{"text": text})
}

func (c *Client) SoftDeleteComment(ctx context.Context, postID, commentID string) (json.RawMessage, error) {
	return c.do(ctx, "soft_delete_comment", http.MethodDelete, tweetPath(postID, "comment", commentID, "soft"), nil)
}

func (c *Client) ReplyToComment(ctx context.Context, postID, commentID, text string) (json.RawMessage, error) {
	return c.do(ctx, "reply", http.MethodPost, tweetPath(postID, "comments", commentID, "replies"), map[string]string{"text": text})
}

func (c *Client) ToggleCommentLike(ctx context.Context, postID, commentID string) (json.RawMessage, error) {
	return c.do(ctx, "comment_like", http.MethodPost, tweetPath(postID, "comments", commentID, "like"), nil)
}

/* ---------- Users & follow graph ---------- */

func (c *Client) ToggleFollow(ctx context.Context, userID string) (model.FollowOutcome, error) {
	raw, err := c.do(ctx, "toggle_follow", http.MethodPost, userPath("follow", userID, "toggle"), map[string]string{})
	if err != nil {
		return model.FollowOutcome{}, err
	}
	var out model.FollowOutcome
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

func (c *Client) GetUserProfile(ctx context.Context, userID string) (model.User, error) {
	raw, err := c.do(ctx, "get_profile", http.MethodGet, userPath(userID), nil)
	if err != nil {
		return model.User{}, err
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return model.User{}, &RequestError{Message: err.Error()}
	}
	return u, nil
}

func (c *Client) GetFollowers(ctx context.Context, userID string) ([]model.User, error) {
	return c.getUsers(ctx, "get_followers", userPath(userID, "followers"))
}

func (c *Client) GetFollowing(ctx context.Context, userID string) ([]model.User, error) {
	return c.getUsers(ctx, "get_following", userPath(userID, "following"))
}

func (c *Client) getUsers(ctx context.Context, endpoint, path string) ([]model.User, error) {
	raw, err := c.do(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	return users, nil
}

func (c *Client) GetUserTweets(ctx context.Context, userID string) ([]model.Post, error) {
	return c.getPosts(ctx, "get_user_tweets", "/api/v1/tweets/user/"+url.PathEscape(userID))
}

func (c *Client) GetUserRetweets(ctx context.Context, userID string) ([]model.Post, error) {
	return c.getPosts(ctx, "get_user_retweets", "/api/v1/tweets/user/"+url.PathEscape(userID)+"/retweets")
}

func (c *Client) GetUserQuotes(ctx context.Context, userID string) ([]model.Post, error) {
	return c.getPosts(ctx, "get_user_quotes", "/api/v1/tweets/user/"+url.PathEscape(userID)+"/quotes")
}

func (c *Client) getPosts(ctx context.Context, endpoint, path string) ([]model.Post, error) {
	raw, err := c.do(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodePosts(raw)
}

// decodePosts tolerates both a bare array and a single object.
func decodePosts(raw json.RawMessage) ([]model.Post, error) {
	var posts []model.Post
	if err := json.Unmarshal(raw, &posts); err == nil {
		return posts, nil
	}
	var one model.Post
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	return []model.Post{one}, nil
}

/* ---------- Auth ---------- */

// LoginResult is what the auth endpoint reports back.
type LoginResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Login authenticates and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	raw, err := c.do(ctx, "login", http.MethodPost, "/api/v1/auth", map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	_ = json.Unmarshal(raw, &out)
	return out, nil
}

// Verify asks the backend who the session cookie belongs to.
func (c *Client) Verify(ctx context.Context) (model.User, error) {
	body, err := c.do(ctx, "verify", http.MethodGet, "/api/v1/verify", nil)
	if err != nil {
		return model.User{}, err
	}
	// verify wraps the user under "user" rather than "data"
	var w struct {
		Success *bool           `json:"success"`
		User    json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &w); err == nil && len(w.User) > 0 && string(w.User) != "null" {
		if w.Success != nil && !*w.Success {
			return model.User{}, &RequestError{Message: "not authenticated"}
		}
		var u model.User
		if err := json.Unmarshal(w.User, &u); err != nil {
			return model.User{}, &RequestError{Message: err.Error()}
		}
		return u, nil
	}
	var u model.User
	if err := json.Unmarshal(body, &u); err != nil || u.ID == "" {
		return model.User{}, &RequestError{Message: "not authenticated"}
	}
	return u, nil
}

// ErrNotFound helps callers distinguish a vanished entity.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status == http.StatusNotFound
	}
	return errors.Is(err, ErrNotFound)
}
