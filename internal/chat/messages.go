package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/npezzotti/studychat/internal/types"
)

const (
	TypeJoin    = "join"
	TypeJoinAck = "join-ack"
	TypeMessage = "message"
	TypeEdit    = "edit"
	TypeDelete  = "delete"
	TypePin     = "pin"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is a single JSON text frame on the chat socket. Type selects
// which of the remaining fields are meaningful.
type Envelope struct {
	Type        string          `json:"type"`
	Room        types.RoomKey   `json:"room,omitempty"`
	Id          int64           `json:"id,omitempty"`
	Author      string          `json:"author,omitempty"`
	Text        string          `json:"text,omitempty"`
	Timestamp   int64           `json:"ts,omitempty"`
	ClientId    string          `json:"clientId,omitempty"`
	ReplyTo     int64           `json:"replyTo,omitempty"`
	Reply       *types.ReplyRef `json:"reply,omitempty"`
	Pinned      bool            `json:"pinned,omitempty"`
	MemberCount int             `json:"memberCount,omitempty"`
}

func (e *Envelope) Message() types.Message {
	return types.Message{
		Id:        e.Id,
		Room:      e.Room,
		Author:    e.Author,
		Text:      e.Text,
		Timestamp: e.Timestamp,
		ClientId:  e.ClientId,
		ReplyTo:   e.ReplyTo,
		Reply:     e.Reply,
	}
}

func NewJoin(room types.RoomKey, author string) *Envelope {
	return &Envelope{
		Type:   TypeJoin,
		Room:   room,
		Author: author,
	}
}

func NewPublish(msg types.Message) *Envelope {
	return &Envelope{
		Type:      TypeMessage,
		Room:      msg.Room,
		Author:    msg.Author,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		ClientId:  msg.ClientId,
		ReplyTo:   msg.ReplyTo,
		Reply:     msg.Reply,
	}
}

func NewEdit(room types.RoomKey, id int64, text string) *Envelope {
	return &Envelope{
		Type: TypeEdit,
		Room: room,
		Id:   id,
		Text: text,
	}
}

func NewDelete(room types.RoomKey, id int64) *Envelope {
	return &Envelope{
		Type: TypeDelete,
		Room: room,
		Id:   id,
	}
}

func NewPin(room types.RoomKey, id int64, pinned bool) *Envelope {
	return &Envelope{
		Type:   TypePin,
		Room:   room,
		Id:     id,
		Pinned: pinned,
	}
}

func serializeEnvelope(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// decodeEnvelope parses an inbound frame and checks the fields its type
// requires.
func decodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch e.Type {
	case TypeJoinAck:
		if e.Room == "" {
			return nil, fmt.Errorf("%w: join-ack without room", ErrMalformedFrame)
		}
	case TypeMessage:
		if e.Room == "" || e.Timestamp == 0 || e.Id == 0 {
			return nil, fmt.Errorf("%w: message without room, ts or id", ErrMalformedFrame)
		}
	case TypeEdit:
		if e.Id == 0 || e.Text == "" {
			return nil, fmt.Errorf("%w: edit without id or text", ErrMalformedFrame)
		}
	case TypeDelete, TypePin:
		if e.Id == 0 {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformedFrame, e.Type)
		}
	case TypeJoin:
		// echoed joins carry nothing we act on
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, e.Type)
	}

	return &e, nil
}
