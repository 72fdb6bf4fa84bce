package reconcile

// Mutation endpoints do not agree on a response shape: some echo the
// full updated tweet, some wrap it, some return a bare action marker or
// a counter delta, and some return nothing useful. Instead of sniffing
// fields at every call site, Classify inspects a payload once and maps
// it to a closed set of variants; Apply then merges the classified
// payload into the previous snapshot.

import (
	"bytes"
	"encoding/json"

	"chirp/internal/logging"
	"chirp/internal/metrics"
	"chirp/internal/model"
)

// Kind discriminates the recognized payload variants.
type Kind int

const (
	Unrecognized Kind = iota
	FullPost
	WrappedPost
	QuoteDelta
	FieldPatch
)

func (k Kind) String() string {
	switch k {
	case FullPost:
		return "full_post"
	case WrappedPost:
		return "wrapped_post"
	case QuoteDelta:
		return "quote_delta"
	case FieldPatch:
		return "field_patch"
	default:
		return "unrecognized"
	}
}

// patch carries the fields a FieldPatch may set. Pointers distinguish
// "absent" from zero.
type patch struct {
	Likes        []string
	LikeCount    *int
	RetweetCount *int
	QuoteCount   *int
	Action       string
}

// Classified is the outcome of one classification pass.
type Classified struct {
	Kind  Kind
	post  *model.Post
	patch patch
}

// probe mirrors the union of fields the variants are told apart by.
type probe struct {
	MID           model.FlexID    `json:"_id"`
	ID            model.FlexID    `json:"id"`
	UpdatedTweet  json.RawMessage `json:"updatedTweet"`
	User          json.RawMessage `json:"user"`
	OriginalTweet model.FlexID    `json:"originalTweet"`
	Likes         []model.FlexID  `json:"likes"`
	LikeCount     *int            `json:"likeCount"`
	RetweetCount  *int            `json:"retweetCount"`
	QuoteCount    *int            `json:"quoteCount"`
	Action        string          `json:"action"`
}

func (p probe) id() string {
	if p.MID != "" {
		return string(p.MID)
	}
	return string(p.ID)
}

// Classify inspects raw against the post identified by postID. Shapes
// overlap, so rule order matters; first match wins.
func Classify(postID string, raw json.RawMessage) Classified {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || raw[0] != '{' {
		return Classified{Kind: Unrecognized}
	}
	var pr probe
	if err := json.Unmarshal(raw, &pr); err != nil {
		return Classified{Kind: Unrecognized}
	}

	if id := pr.id(); id != "" {
		if id != postID {
			// A payload for some other entity must never touch this
			// snapshot, not even via the patch rule below.
			return Classified{Kind: Unrecognized}
		}
		var post model.Post
		if err := json.Unmarshal(raw, &post); err != nil {
			return Classified{Kind: Unrecognized}
		}
		return Classified{Kind: FullPost, post: &post}
	}

	if len(pr.UpdatedTweet) > 0 && string(pr.UpdatedTweet) != "null" {
		inner := Classify(postID, pr.UpdatedTweet)
		if inner.Kind == FullPost {
			inner.Kind = WrappedPost
			return inner
		}
		return Classified{Kind: Unrecognized}
	}

	if len(pr.User) > 0 && string(pr.User) != "null" && pr.OriginalTweet != "" {
		if string(pr.OriginalTweet) == postID {
			return Classified{Kind: QuoteDelta}
		}
		return Classified{Kind: Unrecognized}
	}

	p := patch{
		LikeCount:    pr.LikeCount,
		RetweetCount: pr.RetweetCount,
		QuoteCount:   pr.QuoteCount,
		Action:       pr.Action,
	}
	if pr.Likes != nil {
		p.Likes = make([]string, 0, len(pr.Likes))
		for _, id := range pr.Likes {
			if id != "" {
				p.Likes = append(p.Likes, string(id))
			}
		}
	}
	if p.Likes != nil || p.LikeCount != nil || p.RetweetCount != nil || p.QuoteCount != nil ||
		p.Action == "done" || p.Action == "undone" {
		return Classified{Kind: FieldPatch, patch: p}
	}

	return Classified{Kind: Unrecognized}
}

// Apply merges raw into prev and returns the next snapshot, the variant
// it matched, and whether anything changed. Unrecognized payloads are a
// deliberate no-op, but an observable one: they are logged and counted
// rather than silently dropped.
func Apply(prev model.Post, raw json.RawMessage) (model.Post, Kind, bool) {
	c := Classify(prev.ID, raw)
	metrics.IncReconcile(c.Kind.String())
	switch c.Kind {
	case FullPost, WrappedPost:
		next := *c.post
		// client-side bookkeeping survives a full replacement
		next.Version = prev.Version
		next.DeletedLocally = prev.DeletedLocally
		return next, c.Kind, true
	case QuoteDelta:
		next := prev
		next.QuoteCount = prev.QuoteCount + 1
		return next, c.Kind, true
	case FieldPatch:
		next := prev
		changed := false
		if c.patch.Likes != nil {
			next.Likes = c.patch.Likes
			next.LikeCount = len(c.patch.Likes)
			changed = true
		}
		if c.patch.LikeCount != nil {
			next.LikeCount = *c.patch.LikeCount
			changed = true
		}
		if c.patch.RetweetCount != nil {
			next.RetweetCount = *c.patch.RetweetCount
			changed = true
		}
		if c.patch.QuoteCount != nil {
			next.QuoteCount = *c.patch.QuoteCount
			changed = true
		}
		switch c.patch.Action {
		case "done":
			next.RetweetCount++
			changed = true
		case "undone":
			if next.RetweetCount > 0 {
				next.RetweetCount--
			}
			changed = true
		}
		clampCounts(&next)
		return next, c.Kind, changed
	default:
		logging.Debug("reconcile_unrecognized", map[string]any{"post_id": prev.ID, "payload": truncate(raw, 256)})
		return prev, Unrecognized, false
	}
}

func clampCounts(p *model.Post) {
	if p.LikeCount < 0 {
		p.LikeCount = 0
	}
	if p.RetweetCount < 0 {
		p.RetweetCount = 0
	}
	if p.QuoteCount < 0 {
		p.QuoteCount = 0
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
