package model

import "time"

// Author is a reference to the user who wrote a post or comment. The
// backend sometimes sends only the id and sometimes a populated object;
// unresolved fields stay at their zero value. IsFollowed is tri-state:
// nil means the relationship has not been resolved yet and callers may
// lazily fetch the profile to fill it in.
type Author struct {
	ID             string
	DisplayName    string
	UserName       string
	ProfilePicture string
	IsFollowed     *bool
	FollowerCount  int
}

// Resolved reports whether the follow relationship is known.
func (a Author) Resolved() bool { return a.IsFollowed != nil }

// Reply is owned by exactly one Comment and is immutable once created.
type Reply struct {
	ID        string
	Text      string
	User      Author
	CreatedAt time.Time
}

// Comment hangs off a Post. Deletion is soft: IsDeleted hides the text
// but the record (and its replies) stays in place.
type Comment struct {
	ID        string
	Text      string
	IsDeleted bool
	User      Author
	Likes     []string
	Replies   []Reply
	CreatedAt time.Time
}

// Post is the client-side snapshot of a tweet. The server is the source
// of truth; every snapshot is possibly stale.
type Post struct {
	ID           string
	Body         string
	Author       Author
	Likes        []string
	LikeCount    int
	RetweetCount int
	QuoteCount   int
	Comments     []Comment
	CreatedAt    time.Time
	Image        string

	// Client-side only. Version is a monotonic sequence bumped on every
	// committed local change; stale responses are rejected against it.
	// DeletedLocally tombstones a post whose delete has committed.
	Version        uint64
	DeletedLocally bool
}

// Quote references an original Post without owning it.
type Quote struct {
	ID            string
	User          Author
	OriginalTweet string
	Text          string
}

// User is a full profile as returned by the user endpoints.
type User struct {
	ID             string
	DisplayName    string
	UserName       string
	Email          string
	ProfilePicture string
	IsFollowed     *bool
	FollowerCount  int
	FollowingCount int
	CreatedAt      time.Time
}

// FollowOutcome is the follow-toggle response. Action is "followed" or
// "unfollowed"; an empty Action means the server did not say and the
// caller should flip its local state instead.
type FollowOutcome struct {
	Action        string
	FollowerCount *int
}

// IDIn reports whether id is a member of a normalized id list.
func IDIn(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// WithoutID returns ids with every occurrence of id removed.
func WithoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
