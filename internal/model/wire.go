package model

// Wire decoding for backend payloads. The API is Mongo-backed and loose
// about shapes: ids arrive as "_id" or "id", as strings or as embedded
// objects; an author may be a bare id or a populated user; post text
// lives under "body" or "tweet". Decoders here normalize all of that so
// the rest of the client only ever sees the domain types.

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexID decodes an entity id that may arrive as a string, a number, or
// an object carrying _id/id. Empty after decode means "absent".
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
	case '{':
		var obj struct {
			MID FlexID `json:"_id"`
			ID  FlexID `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		if obj.MID != "" {
			*f = obj.MID
		} else {
			*f = obj.ID
		}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = FlexID(n.String())
	}
	return nil
}

// flexTime tolerates RFC3339 strings, epoch millis, and garbage (zero).
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = flexTime(time.Time{})
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if v, perr := time.Parse(layout, s); perr == nil {
				*t = flexTime(v.UTC())
				return nil
			}
		}
		*t = flexTime(time.Time{})
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = flexTime(time.UnixMilli(n).UTC())
		return nil
	}
	*t = flexTime(time.Time{})
	return nil
}

func idStrings(ids []FlexID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, string(id))
		}
	}
	return out
}

func (a *Author) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*a = Author{}
		return nil
	}
	if b[0] == '"' {
		// bare id reference, profile unresolved
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Author{ID: s}
		return nil
	}
	var w struct {
		MID            FlexID `json:"_id"`
		ID             FlexID `json:"id"`
		DisplayName    string `json:"displayName"`
		UserName       string `json:"userName"`
		ProfilePicture string `json:"profilePicture"`
		Avatar         string `json:"avatar"`
		IsFollowed     *bool  `json:"isFollowed"`
		FollowerCount  int    `json:"followerCount"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	pic := w.ProfilePicture
	if pic == "" {
		pic = w.Avatar
	}
	*a = Author{
		ID:             id,
		DisplayName:    w.DisplayName,
		UserName:       w.UserName,
		ProfilePicture: pic,
		IsFollowed:     w.IsFollowed,
		FollowerCount:  w.FollowerCount,
	}
	return nil
}

func (r *Reply) UnmarshalJSON(b []byte) error {
	var w struct {
		MID       FlexID   `json:"_id"`
		ID        FlexID   `json:"id"`
		Text      string   `json:"text"`
		User      Author   `json:"user"`
		CreatedAt flexTime `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	*r = Reply{ID: id, Text: w.Text, User: w.User, CreatedAt: time.Time(w.CreatedAt)}
	return nil
}

func (c *Comment) UnmarshalJSON(b []byte) error {
	var w struct {
		MID       FlexID   `json:"_id"`
		ID        FlexID   `json:"id"`
		Text      string   `json:"text"`
		IsDeleted bool     `json:"isDeleted"`
		User      Author   `json:"user"`
		Likes     []FlexID `json:"likes"`
		Replies   []Reply  `json:"replies"`
		CreatedAt flexTime `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	*c = Comment{
		ID:        id,
		Text:      w.Text,
		IsDeleted: w.IsDeleted,
		User:      w.User,
		Likes:     idStrings(w.Likes),
		Replies:   w.Replies,
		CreatedAt: time.Time(w.CreatedAt),
	}
	return nil
}

func (p *Post) UnmarshalJSON(b []byte) error {
	var w struct {
		MID          FlexID    `json:"_id"`
		ID           FlexID    `json:"id"`
		Body         string    `json:"body"`
		Tweet        string    `json:"tweet"`
		Author       Author    `json:"author"`
		Likes        []FlexID  `json:"likes"`
		LikeCount    *int      `json:"likeCount"`
		RetweetCount int       `json:"retweetCount"`
		QuoteCount   int       `json:"quoteCount"`
		Comments     []Comment `json:"comments"`
		CreatedAt    flexTime  `json:"createdAt"`
		Image        string    `json:"image"`
		ImagePath    string    `json:"imagePath"`
		TweetImage   string    `json:"tweetImage"`
		ImageURL     string    `json:"imageUrl"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	body := w.Body
	if body == "" {
		body = w.Tweet
	}
	image := w.Image
	for _, alt := range []string{w.ImagePath, w.TweetImage, w.ImageURL} {
		if image == "" {
			image = alt
		}
	}
	likes := idStrings(w.Likes)
	// Never trust an absent count as zero: recompute from the likes
	// array when the payload carried one without an explicit likeCount.
	count := len(likes)
	if w.LikeCount != nil {
		count = *w.LikeCount
	}
	*p = Post{
		ID:           id,
		Body:         body,
		Author:       w.Author,
		Likes:        likes,
		LikeCount:    count,
		RetweetCount: w.RetweetCount,
		QuoteCount:   w.QuoteCount,
		Comments:     w.Comments,
		CreatedAt:    time.Time(w.CreatedAt),
		Image:        image,
	}
	return nil
}

func (q *Quote) UnmarshalJSON(b []byte) error {
	var w struct {
		MID           FlexID `json:"_id"`
		ID            FlexID `json:"id"`
		User          Author `json:"user"`
		OriginalTweet FlexID `json:"originalTweet"`
		Text          string `json:"text"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	*q = Quote{ID: id, User: w.User, OriginalTweet: string(w.OriginalTweet), Text: w.Text}
	return nil
}

func (u *User) UnmarshalJSON(b []byte) error {
	var w struct {
		MID            FlexID   `json:"_id"`
		ID             FlexID   `json:"id"`
		DisplayName    string   `json:"displayName"`
		UserName       string   `json:"userName"`
		Email          string   `json:"email"`
		ProfilePicture string   `json:"profilePicture"`
		IsFollowed     *bool    `json:"isFollowed"`
		FollowerCount  int      `json:"followerCount"`
		FollowingCount int      `json:"followingCount"`
		CreatedAt      flexTime `json:"createdAt"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	id := string(w.MID)
	if id == "" {
		id = string(w.ID)
	}
	*u = User{
		ID:             id,
		DisplayName:    w.DisplayName,
		UserName:       w.UserName,
		Email:          w.Email,
		ProfilePicture: w.ProfilePicture,
		IsFollowed:     w.IsFollowed,
		FollowerCount:  w.FollowerCount,
		FollowingCount: w.FollowingCount,
		CreatedAt:      time.Time(w.CreatedAt),
	}
	return nil
}

func (o *FollowOutcome) UnmarshalJSON(b []byte) error {
	var w struct {
		Action        string `json:"action"`
		FollowerCount *int   `json:"followerCount"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = FollowOutcome{Action: w.Action, FollowerCount: w.FollowerCount}
	return nil
}
