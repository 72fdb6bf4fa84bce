package optimistic

// Controller makes interactive actions feel instantaneous while keeping
// one post's local snapshot eventually consistent with the server.
// Toggle-style actions (like, retweet, quote) are applied locally before
// the request goes out; a failed request triggers a bounded fetch-latest
// fallback, and only if that also fails is the optimistic change
// inverted. Edits and deletes are never optimistic.

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"chirp/internal/apiclient"
	"chirp/internal/logging"
	"chirp/internal/metrics"
	"chirp/internal/model"
	"chirp/internal/notify"
	"chirp/internal/reconcile"
	"chirp/internal/store/actionlog"
)

var (
	// ErrLoginRequired means the action was refused before any network
	// call because no user is authenticated. The Navigator has already
	// been signalled when this is returned.
	ErrLoginRequired = errors.New("login required")
	// ErrEmptyText rejects blank submissions locally.
	ErrEmptyText = errors.New("text must not be empty")
	// ErrNotConfirmed means the Confirmer declined a destructive action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrDeleted means the post was already tombstoned locally.
	ErrDeleted = errors.New("post deleted")
)

// Session yields the authenticated user, if any.
type Session interface {
	CurrentUserID() (string, bool)
	Loading() bool
}

// Navigator receives the redirect signal when an unauthenticated user
// attempts a mutating action.
type Navigator interface {
	RedirectToLogin()
}

// Confirmer blocks destructive actions behind explicit approval.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Gateway is the remote surface the controller mutates through.
type Gateway interface {
	apiclient.API
	QuoteWithImage(ctx context.Context, postID, text, filename string, image io.Reader) (json.RawMessage, error)
}

// Deps are the controller's injected collaborators. API and Session are
// required. A nil Confirmer approves silently (the caller is assumed to
// have confirmed already); a nil Navigator drops the redirect signal.
type Deps struct {
	API        Gateway
	Session    Session
	Navigator  Navigator
	Confirmer  Confirmer
	Queue      *notify.Queue
	Journal    *actionlog.DB
	RetryDelay time.Duration
	Sleep      func(time.Duration)
	Now        func() time.Time
}

// Controller owns the view state of exactly one post.
type Controller struct {
	gw      Gateway
	sess    Session
	nav     Navigator
	confirm Confirmer
	queue   *notify.Queue
	journal *actionlog.DB

	retryDelay time.Duration
	sleep      func(time.Duration)
	now        func() time.Time

	mu   sync.Mutex
	post model.Post
}

func New(post model.Post, d Deps) *Controller {
	c := &Controller{
		gw:         d.API,
		sess:       d.Session,
		nav:        d.Navigator,
		confirm:    d.Confirmer,
		queue:      d.Queue,
		journal:    d.Journal,
		retryDelay: d.RetryDelay,
		sleep:      d.Sleep,
		now:        d.Now,
		post:       post,
	}
	if c.queue == nil {
		c.queue = notify.New()
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 400 * time.Millisecond
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Queue exposes the outbound event queue for subscribers.
func (c *Controller) Queue() *notify.Queue { return c.queue }

// Snapshot returns a copy of the current local post state.
func (c *Controller) Snapshot() model.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.post
}

// SetPost replaces the snapshot with one pushed down by the owner
// (e.g. a feed refetch). It invalidates any in-flight reconciliation.
func (c *Controller) SetPost(p model.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Version = c.post.Version + 1
	c.post = p
}

// requireUser is the hard precondition for every mutating action: no
// authenticated user means no optimistic change and no network call.
func (c *Controller) requireUser() (string, error) {
	if uid, ok := c.sess.CurrentUserID(); ok {
		return uid, nil
	}
	if c.nav != nil {
		c.nav.RedirectToLogin()
	}
	return "", ErrLoginRequired
}

// commitLocked installs next as the current snapshot, bumps the local
// version, and publishes the change. Caller holds c.mu.
func (c *Controller) commitLocked(next model.Post, deleted bool) model.Post {
	next.Version = c.post.Version + 1
	c.post = next
	c.queue.Publish(notify.Event{PostID: next.ID, Post: next, Deleted: deleted})
	return next
}

// record appends a journal row. It must not touch c.mu: several callers
// hold it across their commit.
func (c *Controller) record(postID, typ, outcome, detail string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(context.Background(), c.now().UTC(), typ, postID, outcome, detail); err != nil {
		logging.Debug("journal_write_failed", map[string]any{"error": err.Error()})
	}
}

// fetchLatest is the reconciliation fallback: one fetch, retried once
// after a fixed delay. Best effort.
func (c *Controller) fetchLatest(ctx context.Context) (model.Post, bool) {
	c.mu.Lock()
	id := c.post.ID
	c.mu.Unlock()
	metrics.FallbackFetches.Inc()
	if p, err := c.gw.FetchPostByID(ctx, id); err == nil {
		return p, true
	}
	c.sleep(c.retryDelay)
	if p, err := c.gw.FetchPostByID(ctx, id); err == nil {
		return p, true
	}
	return model.Post{}, false
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// optimisticSpec describes one toggle-style action: how to apply the
// local guess, how to invert it, and which request carries it.
type optimisticSpec struct {
	typ    string
	apply  func(model.Post) model.Post
	invert func(model.Post) model.Post
	call   func(ctx context.Context) (json.RawMessage, error)
}

func (c *Controller) runOptimistic(ctx context.Context, sp optimisticSpec) (model.Post, error) {
	c.mu.Lock()
	if c.post.DeletedLocally {
		c.mu.Unlock()
		return c.Snapshot(), ErrDeleted
	}
	base := c.post
	cur := c.commitLocked(sp.apply(base), false)
	dispatch := cur.Version
	c.mu.Unlock()

	raw, err := sp.call(ctx)
	if err == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.post.Version != dispatch {
			// a newer local state owns the truth now
			logging.Debug("stale_response_dropped", map[string]any{"post_id": base.ID, "type": sp.typ})
			return c.post, nil
		}
		// The reconciler output replaces the optimistic guess, so merge
		// against the pre-optimistic snapshot; an unrecognized payload
		// leaves the guess standing.
		merged, kind, changed := reconcile.Apply(base, raw)
		if changed {
			c.commitLocked(merged, false)
		}
		c.record(base.ID, sp.typ, actionlog.OutcomeCommitted, kind.String())
		return c.post, nil
	}

	if server, ok := c.fetchLatest(ctx); ok {
		// authoritative: the fetched snapshot wins outright
		c.mu.Lock()
		if c.post.Version == dispatch {
			server.DeletedLocally = c.post.DeletedLocally
			c.commitLocked(server, false)
		}
		c.mu.Unlock()
		c.record(base.ID, sp.typ, actionlog.OutcomeReconciled, errMsg(err))
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.post.Version == dispatch {
		c.commitLocked(sp.invert(c.post), false)
		metrics.OptimisticRollbacks.Inc()
		c.record(base.ID, sp.typ, actionlog.OutcomeRolledBack, errMsg(err))
	} else {
		c.record(base.ID, sp.typ, actionlog.OutcomeFailed, errMsg(err))
	}
	c.mu.Unlock()
	return c.Snapshot(), err
}

// toggleLikeBy flips uid's membership in the likes set and keeps the
// count in lockstep. It is its own inverse, which is what makes the
// rollback path safe to reuse.
func toggleLikeBy(p model.Post, uid string) model.Post {
	next := p
	if model.IDIn(p.Likes, uid) {
		next.Likes = model.WithoutID(p.Likes, uid)
	} else {
		next.Likes = append([]string{uid}, p.Likes...)
	}
	next.LikeCount = len(next.Likes)
	return next
}

// ToggleLike likes or unlikes based on current local membership. The
// caller, not the gateway, decides which directional call to send.
func (c *Controller) ToggleLike(ctx context.Context) (model.Post, error) {
	uid, err := c.requireUser()
	if err != nil {
		return c.Snapshot(), err
	}
	liked := model.IDIn(c.Snapshot().Likes, uid)
	typ := "like"
	call := c.gw.Like
	if liked {
		typ = "unlike"
		call = c.gw.Unlike
	}
	return c.runOptimistic(ctx, optimisticSpec{
		typ:    typ,
		apply:  func(p model.Post) model.Post { return toggleLikeBy(p, uid) },
		invert: func(p model.Post) model.Post { return toggleLikeBy(p, uid) },
		call: func(ctx context.Context) (json.RawMessage, error) {
			c.mu.Lock()
			id := c.post.ID
			c.mu.Unlock()
			return call(ctx, id)
		},
	})
}

// Retweet issues the server-side toggle. The optimistic guess is an
// increment; the action marker in the response settles the direction.
func (c *Controller) Retweet(ctx context.Context) (model.Post, error) {
	if _, err := c.requireUser(); err != nil {
		return c.Snapshot(), err
	}
	return c.runOptimistic(ctx, optimisticSpec{
		typ: "retweet",
		apply: func(p model.Post) model.Post {
			p.RetweetCount++
			return p
		},
		invert: func(p model.Post) model.Post {
			if p.RetweetCount > 0 {
				p.RetweetCount--
			}
			return p
		},
		call: func(ctx context.Context) (json.RawMessage, error) {
			return c.gw.Retweet(ctx, c.Snapshot().ID)
		},
	})
}

// SubmitQuote creates a quote of this post. Rollback is a plain counter
// decrement since no list membership was speculatively added.
func (c *Controller) SubmitQuote(ctx context.Context, text string) (model.Post, error) {
	return c.submitQuote(ctx, text, "", nil)
}

// SubmitQuoteWithImage is SubmitQuote with an attached image.
func (c *Controller) SubmitQuoteWithImage(ctx context.Context, text, filename string, image io.Reader) (model.Post, error) {
	return c.submitQuote(ctx, text, filename, image)
}

func (c *Controller) submitQuote(ctx context.Context, text, filename string, image io.Reader) (model.Post, error) {
	if _, err := c.requireUser(); err != nil {
		return c.Snapshot(), err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Snapshot(), ErrEmptyText
	}
	return c.runOptimistic(ctx, optimisticSpec{
		typ: "quote",
		apply: func(p model.Post) model.Post {
			p.QuoteCount++
			return p
		},
		invert: func(p model.Post) model.Post {
			if p.QuoteCount > 0 {
				p.QuoteCount--
			}
			return p
		},
		call: func(ctx context.Context) (json.RawMessage, error) {
			id := c.Snapshot().ID
			if image != nil {
				return c.gw.QuoteWithImage(ctx, id, text, filename, image)
			}
			return c.gw.Quote(ctx, id, text)
		},
	})
}

// runPlain is the non-optimistic request-then-reconcile path used by
// comments and edits: local state changes only once the server answers.
func (c *Controller) runPlain(ctx context.Context, typ string, call func(ctx context.Context, postID string) (json.RawMessage, error)) (model.Post, error) {
	if _, err := c.requireUser(); err != nil {
		return c.Snapshot(), err
	}
	c.mu.Lock()
	if c.post.DeletedLocally {
		c.mu.Unlock()
		return c.Snapshot(), ErrDeleted
	}
	id := c.post.ID
	dispatch := c.post.Version
	c.mu.Unlock()

	raw, err := call(ctx, id)
	if err != nil {
		c.record(id, typ, actionlog.OutcomeFailed, errMsg(err))
		return c.Snapshot(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.post.Version != dispatch {
		logging.Debug("stale_response_dropped", map[string]any{"post_id": id, "type": typ})
		return c.post, nil
	}
	next, kind, changed := reconcile.Apply(c.post, raw)
	if changed {
		c.commitLocked(next, false)
	}
	c.record(id, typ, actionlog.OutcomeCommitted, kind.String())
	return c.post, nil
}

// AddComment appends a comment. Not optimistic: the comment list only
// changes once the server echoes the updated post.
func (c *Controller) AddComment(ctx context.Context, text string) (model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Snapshot(), ErrEmptyText
	}
	return c.runPlain(ctx, "comment", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.AddComment(ctx, id, text)
	})
}

// Reply appends a reply under a comment.
func (c *Controller) Reply(ctx context.Context, commentID, text string) (model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Snapshot(), ErrEmptyText
	}
	return c.runPlain(ctx, "reply", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.ReplyToComment(ctx, id, commentID, text)
	})
}

// ToggleCommentLike flips the caller's like on a comment server-side.
func (c *Controller) ToggleCommentLike(ctx context.Context, commentID string) (model.Post, error) {
	return c.runPlain(ctx, "comment_like", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.ToggleCommentLike(ctx, id, commentID)
	})
}

// UpdateComment edits a comment's text. Never optimistic: a failed save
// must leave the caller free to retry with the text intact.
func (c *Controller) UpdateComment(ctx context.Context, commentID, text string) (model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Snapshot(), ErrEmptyText
	}
	return c.runPlain(ctx, "comment_edit", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.UpdateComment(ctx, id, commentID, text)
	})
}

// SoftDeleteComment tombstones a comment after explicit confirmation.
// The local comment is untouched until the server confirms.
func (c *Controller) SoftDeleteComment(ctx context.Context, commentID string) (model.Post, error) {
	if _, err := c.requireUser(); err != nil {
		return c.Snapshot(), err
	}
	if c.confirm != nil && !c.confirm.Confirm("Delete this comment?") {
		return c.Snapshot(), ErrNotConfirmed
	}
	return c.runPlain(ctx, "comment_delete", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.SoftDeleteComment(ctx, id, commentID)
	})
}

// SaveEdit updates the post body. Never optimistic.
func (c *Controller) SaveEdit(ctx context.Context, text string) (model.Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.Snapshot(), ErrEmptyText
	}
	return c.runPlain(ctx, "edit", func(ctx context.Context, id string) (json.RawMessage, error) {
		return c.gw.UpdatePost(ctx, id, text)
	})
}

// Delete removes the post after confirmation. A committed delete
// tombstones the snapshot locally rather than discarding it.
func (c *Controller) Delete(ctx context.Context) error {
	if _, err := c.requireUser(); err != nil {
		return err
	}
	if c.confirm != nil && !c.confirm.Confirm("Are you sure you want to delete this post?") {
		return ErrNotConfirmed
	}
	c.mu.Lock()
	if c.post.DeletedLocally {
		c.mu.Unlock()
		return ErrDeleted
	}
	id := c.post.ID
	c.mu.Unlock()

	if _, err := c.gw.DeletePost(ctx, id); err != nil {
		c.record(id, "delete", actionlog.OutcomeFailed, errMsg(err))
		return err
	}
	c.mu.Lock()
	next := c.post
	next.DeletedLocally = true
	c.commitLocked(next, true)
	c.mu.Unlock()
	c.record(id, "delete", actionlog.OutcomeCommitted, "")
	return nil
}

// ToggleFollow follows or unfollows the post's author. The server's
// action field settles direction; without one the tri-state flips.
// Following yourself is a no-op.
func (c *Controller) ToggleFollow(ctx context.Context) (model.Post, error) {
	uid, err := c.requireUser()
	if err != nil {
		return c.Snapshot(), err
	}
	c.mu.Lock()
	id := c.post.ID
	author := c.post.Author
	c.mu.Unlock()
	if author.ID == "" || author.ID == uid {
		return c.Snapshot(), nil
	}
	out, err := c.gw.ToggleFollow(ctx, author.ID)
	if err != nil {
		c.record(id, "follow", actionlog.OutcomeFailed, errMsg(err))
		return c.Snapshot(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.post
	switch out.Action {
	case "followed":
		t := true
		next.Author.IsFollowed = &t
	case "unfollowed":
		f := false
		next.Author.IsFollowed = &f
	default:
		flipped := !(next.Author.IsFollowed != nil && *next.Author.IsFollowed)
		next.Author.IsFollowed = &flipped
	}
	if out.FollowerCount != nil {
		next.Author.FollowerCount = *out.FollowerCount
	}
	c.commitLocked(next, false)
	c.record(id, "follow", actionlog.OutcomeCommitted, out.Action)
	return c.post, nil
}

// ResolveAuthor lazily fetches the author's profile when the follow
// relationship is still unknown. Best effort; fetch errors are ignored.
func (c *Controller) ResolveAuthor(ctx context.Context) model.Post {
	c.mu.Lock()
	author := c.post.Author
	c.mu.Unlock()
	if author.ID == "" || author.Resolved() {
		return c.Snapshot()
	}
	profile, err := c.gw.GetUserProfile(ctx, author.ID)
	if err != nil {
		logging.Debug("author_resolve_failed", map[string]any{"author_id": author.ID, "error": err.Error()})
		return c.Snapshot()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.post
	next.Author.IsFollowed = profile.IsFollowed
	if profile.FollowerCount > 0 {
		next.Author.FollowerCount = profile.FollowerCount
	}
	if next.Author.DisplayName == "" {
		next.Author.DisplayName = profile.DisplayName
	}
	if next.Author.UserName == "" {
		next.Author.UserName = profile.UserName
	}
	if next.Author.ProfilePicture == "" {
		next.Author.ProfilePicture = profile.ProfilePicture
	}
	c.commitLocked(next, false)
	return c.post
}
