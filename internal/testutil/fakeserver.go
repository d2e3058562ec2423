package testutil

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/studychat/internal/types"
)

// Frame mirrors the chat wire envelope so the fake backend does not
// depend on the client package it is used to test.
type Frame struct {
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

// FakeServer is an in-process chat backend serving the REST and WebSocket
// endpoints the client consumes.
type FakeServer struct {
	*httptest.Server

	Token string

	log      *log.Logger
	mu       sync.Mutex
	rooms    []types.Room
	messages map[types.RoomKey][]types.Message
	pins     map[types.RoomKey][]int64
	conns    map[*fakeConn]struct{}
	received []Frame
	nextId   int64
	joins    int
}

type fakeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	room    types.RoomKey
}

func (c *fakeConn) write(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(f)
}

func NewFakeServer(t *testing.T) *FakeServer {
	fs := &FakeServer{
		log:      TestLogger(t),
		messages: make(map[types.RoomKey][]types.Message),
		pins:     make(map[types.RoomKey][]int64),
		conns:    make(map[*fakeConn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", fs.login)
	mux.HandleFunc("GET /api/rooms", fs.authMiddleware(fs.listRooms))
	mux.HandleFunc("POST /api/rooms", fs.authMiddleware(fs.createRoom))
	mux.HandleFunc("GET /api/rooms/{subject}/{slug}/messages", fs.authMiddleware(fs.history))
	mux.HandleFunc("GET /api/rooms/{subject}/{slug}/pins", fs.authMiddleware(fs.listPins))
	mux.HandleFunc("PATCH /api/messages/{id}", fs.authMiddleware(fs.editMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", fs.authMiddleware(fs.deleteMessage))
	mux.HandleFunc("GET /ws", fs.authMiddleware(fs.serveWs))

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		fs.CloseConnections()
		fs.Server.Close()
	})

	return fs
}

// AddRoom registers a room with optional existing history.
func (fs *FakeServer) AddRoom(room types.Room, history ...types.Message) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.rooms = append(fs.rooms, room)
	for _, m := range history {
		fs.nextId = max(fs.nextId, m.Id)
		m.Room = room.Key()
		fs.messages[room.Key()] = append(fs.messages[room.Key()], m)
	}
}

func (fs *FakeServer) SetPins(key types.RoomKey, ids ...int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.pins[key] = ids
}

// Joins returns how many join frames the server has received.
func (fs *FakeServer) Joins() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.joins
}

// Received returns a copy of every frame received so far.
func (fs *FakeServer) Received() []Frame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Clone(fs.received)
}

func (fs *FakeServer) Messages(key types.RoomKey) []types.Message {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Clone(fs.messages[key])
}

// Broadcast sends f to every connection joined to f.Room.
func (fs *FakeServer) Broadcast(f Frame) {
	fs.mu.Lock()
	conns := make([]*fakeConn, 0, len(fs.conns))
	for c := range fs.conns {
		if c.room == f.Room {
			conns = append(conns, c)
		}
	}
	fs.mu.Unlock()

	for _, c := range conns {
		if err := c.write(f); err != nil {
			fs.log.Println("fake server write:", err)
		}
	}
}

// CloseConnections drops every live WebSocket, forcing clients to reconnect.
func (fs *FakeServer) CloseConnections() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for c := range fs.conns {
		c.ws.Close()
		delete(fs.conns, c)
	}
}

func (fs *FakeServer) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		fs.log.Printf("json encode: %v", err)
	}
}

func (fs *FakeServer) writeError(w http.ResponseWriter, statusCode int) {
	fs.writeJson(w, statusCode, map[string]any{
		"status_code": statusCode,
		"message":     strings.ToLower(http.StatusText(statusCode)),
	})
}

func (fs *FakeServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fs.Token != "" && r.Header.Get("Authorization") != "Bearer "+fs.Token {
			fs.writeError(w, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (fs *FakeServer) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		fs.writeError(w, http.StatusBadRequest)
		return
	}
	if req.Password != "secret" {
		fs.writeError(w, http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "token", Value: fs.Token, Path: "/", HttpOnly: true})
	fs.writeJson(w, http.StatusOK, types.User{Id: 1, Username: "ada", EmailAddress: req.Email})
}

func (fs *FakeServer) listRooms(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	rooms := slices.Clone(fs.rooms)
	fs.mu.Unlock()

	fs.writeJson(w, http.StatusOK, rooms)
}

func (fs *FakeServer) createRoom(w http.ResponseWriter, r *http.Request) {
	var req types.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" || req.Slug == "" {
		fs.writeError(w, http.StatusBadRequest)
		return
	}

	room := types.Room{Subject: req.Subject, Slug: req.Slug, Title: req.Title}
	fs.AddRoom(room)
	fs.writeJson(w, http.StatusCreated, room)
}

func (fs *FakeServer) roomKey(r *http.Request) types.RoomKey {
	return types.NewRoomKey(r.PathValue("subject"), r.PathValue("slug"))
}

func (fs *FakeServer) history(w http.ResponseWriter, r *http.Request) {
	key := fs.roomKey(r)

	var before int64
	limit := 50
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fs.writeError(w, http.StatusBadRequest)
			return
		}
		before = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fs.writeError(w, http.StatusBadRequest)
			return
		}
		limit = n
	}

	fs.mu.Lock()
	var page []types.Message
	for _, m := range fs.messages[key] {
		if before == 0 || m.Id < before {
			page = append(page, m)
		}
	}
	fs.mu.Unlock()

	if len(page) > limit {
		page = page[len(page)-limit:]
	}
	if page == nil {
		page = []types.Message{}
	}

	fs.writeJson(w, http.StatusOK, page)
}

func (fs *FakeServer) listPins(w http.ResponseWriter, r *http.Request) {
	key := fs.roomKey(r)

	fs.mu.Lock()
	pinned := []types.Message{}
	for _, id := range fs.pins[key] {
		for _, m := range fs.messages[key] {
			if m.Id == id {
				pinned = append(pinned, m)
			}
		}
	}
	fs.mu.Unlock()

	fs.writeJson(w, http.StatusOK, pinned)
}

func (fs *FakeServer) findMessage(id int64) (types.RoomKey, int, bool) {
	for key, msgs := range fs.messages {
		for i, m := range msgs {
			if m.Id == id {
				return key, i, true
			}
		}
	}
	return "", 0, false
}

func (fs *FakeServer) editMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		fs.writeError(w, http.StatusBadRequest)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fs.writeError(w, http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	key, i, ok := fs.findMessage(id)
	if !ok {
		fs.mu.Unlock()
		fs.writeError(w, http.StatusNotFound)
		return
	}
	fs.messages[key][i].Text = req.Text
	fs.messages[key][i].Edited = true
	msg := fs.messages[key][i]
	fs.mu.Unlock()

	fs.writeJson(w, http.StatusOK, msg)
}

func (fs *FakeServer) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		fs.writeError(w, http.StatusBadRequest)
		return
	}

	fs.mu.Lock()
	key, i, ok := fs.findMessage(id)
	if ok {
		fs.messages[key][i].Deleted = true
	}
	fs.mu.Unlock()

	if !ok {
		fs.writeError(w, http.StatusNotFound)
		return
	}
	fs.writeJson(w, http.StatusNoContent, nil)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (fs *FakeServer) serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fs.log.Println("error upgrading connection:", err)
		return
	}

	c := &fakeConn{ws: ws}
	fs.mu.Lock()
	fs.conns[c] = struct{}{}
	fs.mu.Unlock()

	go fs.read(c)
}

func (fs *FakeServer) read(c *fakeConn) {
	defer func() {
		fs.mu.Lock()
		delete(fs.conns, c)
		fs.mu.Unlock()
		c.ws.Close()
	}()

	for {
		var f Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			return
		}

		fs.mu.Lock()
		fs.received = append(fs.received, f)
		fs.mu.Unlock()

		switch f.Type {
		case "join":
			fs.mu.Lock()
			c.room = f.Room
			fs.joins++
			members := 0
			for other := range fs.conns {
				if other.room == f.Room {
					members++
				}
			}
			fs.mu.Unlock()
			c.write(Frame{Type: "join-ack", Room: f.Room, MemberCount: members})
		case "message":
			fs.mu.Lock()
			fs.nextId++
			f.Id = fs.nextId
			fs.messages[f.Room] = append(fs.messages[f.Room], types.Message{
				Id:        f.Id,
				Room:      f.Room,
				Author:    f.Author,
				Text:      f.Text,
				Timestamp: f.Timestamp,
				ClientId:  f.ClientId,
				ReplyTo:   f.ReplyTo,
				Reply:     f.Reply,
			})
			fs.mu.Unlock()
			fs.Broadcast(f)
		case "pin":
			fs.mu.Lock()
			ids := slices.DeleteFunc(slices.Clone(fs.pins[f.Room]), func(id int64) bool { return id == f.Id })
			if f.Pinned {
				ids = append(ids, f.Id)
			}
			fs.pins[f.Room] = ids
			fs.mu.Unlock()
			fs.Broadcast(f)
		case "edit", "delete":
			fs.Broadcast(f)
		}
	}
}
