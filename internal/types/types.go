package types

import (
	"errors"
	"strings"
)

var ErrInvalidRoomKey = errors.New("invalid room key")

// RoomKey identifies a room by its "subject/slug" composite key.
type RoomKey string

func NewRoomKey(subject, slug string) RoomKey {
	return RoomKey(subject + "/" + slug)
}

// ParseRoomKey validates s and returns it as a RoomKey.
func ParseRoomKey(s string) (RoomKey, error) {
	subject, slug, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || subject == "" || slug == "" || strings.Contains(slug, "/") {
		return "", ErrInvalidRoomKey
	}

	return NewRoomKey(subject, slug), nil
}

func (k RoomKey) Subject() string {
	subject, _, _ := strings.Cut(string(k), "/")
	return subject
}

func (k RoomKey) Slug() string {
	_, slug, _ := strings.Cut(string(k), "/")
	return slug
}

func (k RoomKey) String() string {
	return string(k)
}

type Room struct {
	Subject     string `json:"subject"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	MemberCount int    `json:"member_count"`
}

func (r Room) Key() RoomKey {
	return NewRoomKey(r.Subject, r.Slug)
}

// ReplyRef is a snapshot of the message being replied to, taken at send time.
type ReplyRef struct {
	Id      int64  `json:"id"`
	Author  string `json:"author"`
	Snippet string `json:"snippet"`
}

type Message struct {
	Id        int64     `json:"id,omitempty"`
	Room      RoomKey   `json:"room"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"ts"`
	ClientId  string    `json:"client_id,omitempty"`
	ReplyTo   int64     `json:"reply_to,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	Edited    bool      `json:"edited,omitempty"`
}

type CreateRoomRequest struct {
	Subject string `json:"subject"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
}

type User struct {
	Id           int    `json:"id"`
	Username     string `json:"username"`
	EmailAddress string `json:"email_address,omitempty"`
}
