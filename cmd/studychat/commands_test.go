package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/npezzotti/studychat/internal/api"
	"github.com/npezzotti/studychat/internal/chat"
	"github.com/npezzotti/studychat/internal/config"
	"github.com/npezzotti/studychat/internal/stats"
	"github.com/npezzotti/studychat/internal/store"
	"github.com/npezzotti/studychat/internal/testutil"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func Test_parseCommand(t *testing.T) {
	tcases := []struct {
		name     string
		line     string
		expected command
		err      bool
	}{
		{name: "empty", line: "   ", expected: command{}},
		{name: "plain text", line: " hello there ", expected: command{name: "say", text: "hello there"}},
		{name: "reply", line: "/reply 7 good point", expected: command{name: "reply", id: 7, text: "good point"}},
		{name: "reply with hash", line: "/reply #7 ok", expected: command{name: "reply", id: 7, text: "ok"}},
		{name: "edit", line: "/edit 3 fixed", expected: command{name: "edit", id: 3, text: "fixed"}},
		{name: "delete", line: "/delete 3", expected: command{name: "delete", id: 3}},
		{name: "pin", line: "/pin 9", expected: command{name: "pin", id: 9}},
		{name: "unpin", line: "/unpin 9", expected: command{name: "unpin", id: 9}},
		{name: "like", line: "/like 2", expected: command{name: "like", id: 2}},
		{name: "join", line: "/join math/algebra", expected: command{name: "join", room: "math/algebra"}},
		{name: "nick", line: "/nick ada lovelace", expected: command{name: "nick", text: "ada lovelace"}},
		{name: "older", line: "/older", expected: command{name: "older"}},
		{name: "compact", line: "/compact", expected: command{name: "compact"}},
		{name: "quit", line: "/quit", expected: command{name: "quit"}},
		{name: "reply without text", line: "/reply 7", err: true},
		{name: "bad id", line: "/delete abc", err: true},
		{name: "negative id", line: "/pin -1", err: true},
		{name: "bad room", line: "/join algebra", err: true},
		{name: "nick without name", line: "/nick", err: true},
		{name: "unknown", line: "/shrug", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := parseCommand(tc.line)
			if tc.err {
				assert.Error(t, err, "expected parse error")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, cmd)
		})
	}
}

type queueSender struct {
	mu     sync.Mutex
	frames []*chat.Envelope
}

func (q *queueSender) Send(e *chat.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, e)
	return true
}

func newCommandSession(t *testing.T) (*chat.Session, *store.Store, *queueSender) {
	st, err := store.OpenInMemory(testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mc := &api.MockClient{}
	mc.On("History", mock.Anything, types.RoomKey("physics/optics"), int64(0), 50).
		Return([]types.Message{{Id: 4, Author: "bob", Text: "hi all", Timestamp: 1}}, nil).Once()
	mc.On("Pins", mock.Anything, types.RoomKey("physics/optics")).Return([]types.Message{}, nil).Once()

	sender := &queueSender{}
	s := chat.NewSession(testutil.TestLogger(t), sender, mc, st, nil, stats.NopStats{}, chat.SessionConfig{
		ClientId:    "abc",
		DisplayName: "ada",
	})
	t.Cleanup(s.Close)

	require.NoError(t, s.SwitchRoom(context.Background(), "physics/optics", false))
	return s, st, sender
}

func Test_readInput(t *testing.T) {
	s, st, sender := newCommandSession(t)

	in := strings.NewReader("hello\n\n/reply 4 welcome\n/like 4\n/nick lovelace\n/compact\n/bogus\n/quit\nnever sent\n")
	var out bytes.Buffer
	view := newTerminalView(&bytes.Buffer{})

	c := &console{session: s, view: view, prefs: st, out: &out}
	c.readInput(context.Background(), in)

	require.Len(t, sender.frames, 2, "expected two messages before quitting")
	assert.Equal(t, "hello", sender.frames[0].Text)
	assert.Equal(t, int64(4), sender.frames[1].ReplyTo)
	require.NotNil(t, sender.frames[1].Reply)
	assert.Equal(t, "bob", sender.frames[1].Reply.Author)

	assert.Equal(t, "lovelace", s.DisplayName())
	saved, err := st.DisplayName()
	require.NoError(t, err)
	assert.Equal(t, "lovelace", saved, "expected /nick to be persisted")

	assert.True(t, view.Compact())
	compact, err := st.Pref(prefCompact)
	require.NoError(t, err)
	assert.True(t, compact, "expected /compact to be persisted")
	assert.Contains(t, out.String(), "* compact view on")

	assert.Contains(t, out.String(), "* liked #4")
	assert.Contains(t, out.String(), "unknown command /bogus")
	assert.Len(t, s.Entries(), 3)
}

func Test_runCommandErrors(t *testing.T) {
	s, _, _ := newCommandSession(t)
	var out bytes.Buffer

	_, err := runCommand(context.Background(), s, command{name: "edit", id: 99, text: "x"}, &out)
	assert.ErrorIs(t, err, chat.ErrUnknownMessage)

	quit, err := runCommand(context.Background(), s, command{name: "help"}, &out)
	assert.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "/reply ID TEXT")
}

func Test_readInputExplainsErrors(t *testing.T) {
	st, err := store.OpenInMemory(testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mc := &api.MockClient{}
	mc.On("History", mock.Anything, types.RoomKey("physics/optics"), int64(0), 50).Return([]types.Message{}, nil).Once()
	mc.On("Pins", mock.Anything, types.RoomKey("physics/optics")).Return([]types.Message{}, nil).Once()
	mc.On("ListRooms", mock.Anything).
		Return([]types.Room(nil), &api.ApiError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}).Once()

	s := chat.NewSession(testutil.TestLogger(t), &queueSender{}, mc, st, nil, stats.NopStats{}, chat.SessionConfig{ClientId: "abc"})
	t.Cleanup(s.Close)
	require.NoError(t, s.SwitchRoom(context.Background(), "physics/optics", false))

	var out bytes.Buffer
	c := &console{session: s, view: newTerminalView(&bytes.Buffer{}), prefs: st, out: &out}
	c.readInput(context.Background(), strings.NewReader("/rooms\n"))

	assert.Contains(t, out.String(), "run `studychat login`")
}

func Test_pickRoom(t *testing.T) {
	cfg = config.Default()
	defer func() { cfg = nil }()

	saved := func() (types.RoomKey, error) { return "saved/room", nil }
	none := func() (types.RoomKey, error) { return "", nil }

	key, err := pickRoom([]string{"arg/room"}, saved)
	require.NoError(t, err)
	assert.Equal(t, types.RoomKey("arg/room"), key)

	key, err = pickRoom(nil, saved)
	require.NoError(t, err)
	assert.Equal(t, types.RoomKey("saved/room"), key)

	_, err = pickRoom(nil, none)
	assert.Error(t, err, "expected error without any room")

	_, err = pickRoom([]string{"noslash"}, saved)
	assert.ErrorIs(t, err, types.ErrInvalidRoomKey)
}
