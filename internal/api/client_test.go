package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/studychat/internal/testutil"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	c, err := NewClient(baseURL, nil, testutil.TestLogger(t))
	require.NoError(t, err, "expected client to be created")
	return c
}

func TestClient_Login(t *testing.T) {
	fs := testutil.NewFakeServer(t)
	fs.Token = "session-token"
	c := newTestClient(t, fs.URL)

	t.Run("success", func(t *testing.T) {
		user, token, err := c.Login(context.Background(), "ada@example.com", "secret")
		assert.NoError(t, err, "expected login to succeed")
		assert.Equal(t, "session-token", token)
		assert.Equal(t, "session-token", c.Token(), "expected client to adopt token")
		assert.Equal(t, "ada@example.com", user.EmailAddress)
	})

	t.Run("bad password", func(t *testing.T) {
		_, _, err := c.Login(context.Background(), "ada@example.com", "wrong")
		assert.True(t, IsUnauthorized(err), "expected unauthorized error, got %v", err)
	})
}

func TestClient_Rooms(t *testing.T) {
	fs := testutil.NewFakeServer(t)
	fs.AddRoom(types.Room{Subject: "physics", Slug: "optics", Title: "Optics"})
	c := newTestClient(t, fs.URL)

	created, err := c.CreateRoom(context.Background(), types.CreateRoomRequest{Subject: "math", Slug: "algebra", Title: "Algebra"})
	require.NoError(t, err, "expected room creation to succeed")
	assert.Equal(t, types.RoomKey("math/algebra"), created.Key())

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Optics", rooms[0].Title)
	assert.Equal(t, "Algebra", rooms[1].Title)

	_, err = c.CreateRoom(context.Background(), types.CreateRoomRequest{Title: "missing key"})
	var apiErr *ApiError
	assert.ErrorAs(t, err, &apiErr, "expected ApiError for invalid room")
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_HistoryAndPins(t *testing.T) {
	fs := testutil.NewFakeServer(t)
	room := types.Room{Subject: "cs", Slug: "graphs"}
	fs.AddRoom(room,
		types.Message{Id: 1, Author: "ada", Text: "one", Timestamp: 100},
		types.Message{Id: 2, Author: "bob", Text: "two", Timestamp: 200},
		types.Message{Id: 3, Author: "ada", Text: "three", Timestamp: 300},
	)
	fs.SetPins(room.Key(), 2)
	c := newTestClient(t, fs.URL)

	latest, err := c.History(context.Background(), room.Key(), 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest[0].Id)
	assert.Equal(t, int64(3), latest[1].Id)

	older, err := c.History(context.Background(), room.Key(), 2, 10)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, int64(1), older[0].Id)

	pins, err := c.Pins(context.Background(), room.Key())
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, "two", pins[0].Text)
}

func TestClient_EditDelete(t *testing.T) {
	fs := testutil.NewFakeServer(t)
	room := types.Room{Subject: "cs", Slug: "graphs"}
	fs.AddRoom(room, types.Message{Id: 5, Author: "ada", Text: "draft", Timestamp: 100})
	c := newTestClient(t, fs.URL)

	msg, err := c.EditMessage(context.Background(), 5, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", msg.Text)
	assert.True(t, msg.Edited)

	require.NoError(t, c.DeleteMessage(context.Background(), 5))
	assert.True(t, fs.Messages(room.Key())[0].Deleted, "expected message to be soft deleted")

	err = c.DeleteMessage(context.Background(), 99)
	assert.True(t, IsNotFound(err), "expected not found for unknown message, got %v", err)
}

func TestClient_Authorization(t *testing.T) {
	fs := testutil.NewFakeServer(t)
	fs.Token = "good"
	c := newTestClient(t, fs.URL)

	_, err := c.ListRooms(context.Background())
	assert.True(t, IsUnauthorized(err), "expected unauthorized without token")

	c.SetToken("good")
	_, err = c.ListRooms(context.Background())
	assert.NoError(t, err, "expected request to succeed with token")
	assert.Equal(t, "Bearer good", c.AuthHeader().Get("Authorization"))
}

func TestClient_endpoint(t *testing.T) {
	c := newTestClient(t, "https://chat.example.com/base/")
	assert.Equal(t, "https://chat.example.com/base/api/rooms", c.endpoint("/api/rooms", nil))
	assert.Equal(t,
		"https://chat.example.com/base/api/rooms/my%20subject/intro/messages",
		c.endpoint(roomPath(types.NewRoomKey("my subject", "intro"), "/messages"), nil),
	)
}

func TestClient_malformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListRooms(context.Background())
	assert.ErrorContains(t, err, "decode response")
}
