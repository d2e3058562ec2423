package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/npezzotti/studychat/internal/chat"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_formatEntry(t *testing.T) {
	now := time.UnixMilli(10 * 60 * 1000)
	ts := now.Add(-3 * time.Minute).UnixMilli()

	tcases := []struct {
		name     string
		entry    chat.Entry
		compact  bool
		expected string
	}{
		{
			name:     "confirmed",
			entry:    chat.Entry{Message: types.Message{Id: 42, Author: "ada", Text: "hi", Timestamp: ts}},
			expected: "#42 [3 minutes ago] ada: hi\n",
		},
		{
			name:     "compact",
			entry:    chat.Entry{Message: types.Message{Id: 42, Author: "ada", Text: "hi", Timestamp: ts}, Liked: true},
			compact:  true,
			expected: "#42 ada: hi (liked)\n",
		},
		{
			name:     "pending",
			entry:    chat.Entry{Message: types.Message{Author: "ada", Text: "hi", Timestamp: ts}, Outgoing: true, Pending: true},
			expected: "#- [3 minutes ago] ada: hi (sending)\n",
		},
		{
			name:     "edited and pinned",
			entry:    chat.Entry{Message: types.Message{Id: 5, Author: "bob", Text: "fixed", Timestamp: ts, Edited: true}, Pinned: true, Liked: true},
			expected: "#5 [3 minutes ago] bob: fixed (edited) (pinned, liked)\n",
		},
		{
			name:     "deleted",
			entry:    chat.Entry{Message: types.Message{Id: 6, Author: "bob", Text: "secret", Timestamp: ts, Deleted: true}},
			expected: "#6 [3 minutes ago] bob: [message deleted]\n",
		},
		{
			name: "reply",
			entry: chat.Entry{Message: types.Message{
				Id: 7, Author: "ada", Text: "yes", Timestamp: ts, ReplyTo: 6,
				Reply: &types.ReplyRef{Id: 6, Author: "bob", Snippet: "really?"},
			}},
			expected: "    ↳ bob: really?\n#7 [3 minutes ago] ada: yes\n",
		},
		{
			name:     "reply to unknown",
			entry:    chat.Entry{Message: types.Message{Id: 8, Author: "ada", Text: "?", Timestamp: ts, ReplyTo: 404}},
			expected: "    ↳ #404\n#8 [3 minutes ago] ada: ?\n",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, formatEntry(tc.entry, now, "", tc.compact))
		})
	}
}

func TestTerminalView(t *testing.T) {
	var out bytes.Buffer
	v := newTerminalView(&out)
	v.now = func() time.Time { return time.UnixMilli(60 * 1000) }

	v.ConnectionChanged(chat.StateOnline)
	v.RoomJoined("physics/optics", 1)
	v.MessageUpdated(chat.Entry{Message: types.Message{Id: 1, Author: "ada", Text: "hi", Timestamp: 60 * 1000}})
	v.PinsChanged("physics/optics", []types.Message{{Id: 1, Author: "ada", Text: "hi"}})
	v.PinsChanged("physics/optics", nil)
	v.SetCompact(true)
	v.MessageAdded(chat.Entry{Message: types.Message{Id: 2, Author: "bob", Text: "yo", Timestamp: 60 * 1000}})

	expected := "* connection online\n" +
		"* joined physics/optics, 1 member online\n" +
		"~ #1 [now] ada: hi\n" +
		"-- pinned in physics/optics --\n" +
		"  #1 ada: hi\n" +
		"--\n" +
		"-- no pinned messages in physics/optics --\n" +
		"#2 bob: yo\n"
	assert.Equal(t, expected, out.String())
}
