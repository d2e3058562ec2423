package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/studychat/internal/stats"
	"github.com/npezzotti/studychat/internal/types"
)

var (
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrUnknownMessage = errors.New("message not in timeline")
	ErrNoRoom         = errors.New("no room joined")
)

// RoomAPI is the request/response half of the backend.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]types.Room, error)
	CreateRoom(ctx context.Context, req types.CreateRoomRequest) (types.Room, error)
	History(ctx context.Context, key types.RoomKey, before int64, limit int) ([]types.Message, error)
	Pins(ctx context.Context, key types.RoomKey) ([]types.Message, error)
	EditMessage(ctx context.Context, id int64, text string) (types.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
}

// Sender queues a frame on the socket without blocking.
type Sender interface {
	Send(e *Envelope) bool
}

// Prefs is the persisted per-user state the session reads and writes.
type Prefs interface {
	MessageLiked(id int64) (bool, error)
	SetMessageLiked(id int64, liked bool) error
	SetRoom(key types.RoomKey) error
}

type SessionConfig struct {
	ClientId     string
	DisplayName  string
	HistoryLimit int
}

// Session is the controller for one chat client. It owns the current
// room, the timeline with its pending sends and the pin tray, and is the
// ConnHandler for the connection that feeds it.
type Session struct {
	log    *log.Logger
	sender Sender
	api    RoomAPI
	prefs  Prefs
	view   View
	stats  stats.StatsProvider

	clientId     string
	historyLimit int
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	name         string
	room         types.RoomKey
	announced    types.RoomKey
	members      int
	state        State
	rooms        []types.Room
	timeline     *Timeline
	pins         PinTray
	lastTs       int64
	gen          uint64
	cancelSwitch context.CancelFunc
}

func NewSession(logger *log.Logger, sender Sender, api RoomAPI, prefs Prefs, view View, su stats.StatsProvider, cfg SessionConfig) *Session {
	if view == nil {
		view = NopView{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	su.RegisterMetric(stats.MessagesSent)
	su.RegisterMetric(stats.MessagesAcked)
	su.RegisterMetric(stats.MessagesReceived)
	su.RegisterMetric(stats.PendingMessages)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		log:          logger,
		sender:       sender,
		api:          api,
		prefs:        prefs,
		view:         view,
		stats:        su,
		clientId:     cfg.ClientId,
		historyLimit: cfg.HistoryLimit,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		name:         cfg.DisplayName,
		state:        StateConnecting,
		timeline:     NewTimeline(),
	}
}

// Close cancels in-flight loads and waits for background pin refreshes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancelSwitch != nil {
		s.cancelSwitch()
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Session) ClientId() string {
	return s.clientId
}

func (s *Session) Room() types.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Members() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetDisplayName changes the author name and re-announces it to the
// current room.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = name
	if s.room != "" && s.state == StateOnline {
		s.announceLocked()
	}
}

func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Entries()
}

func (s *Session) Pins() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins.Pins()
}

func (s *Session) Rooms() []types.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rooms)
}

// Hello returns the join announcement for the current room.
func (s *Session) Hello() *Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.announced = s.room
	if s.room == "" {
		return nil
	}
	return NewJoin(s.room, s.name)
}

// ConnectionChanged records the connection state. Coming online after a
// switch that raced the Hello re-joins the current room.
func (s *Session) ConnectionChanged(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	if state == StateOnline && s.room != "" && s.room != s.announced {
		s.announceLocked()
	}
	s.view.ConnectionChanged(state)
}

func (s *Session) announceLocked() {
	if !s.sender.Send(NewJoin(s.room, s.name)) {
		s.log.Printf("failed to send join for %s", s.room)
		return
	}
	s.announced = s.room
}

// HandleFrame applies one inbound frame. Malformed frames and frames for
// another room are dropped.
func (s *Session) HandleFrame(raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		s.log.Printf("dropping frame: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if env.Room != "" && env.Room != s.room {
		return
	}

	switch env.Type {
	case TypeJoinAck:
		s.members = env.MemberCount
		s.view.RoomJoined(s.room, s.members)
	case TypeMessage:
		s.receiveMessage(env.Message())
	case TypeEdit:
		if e, ok := s.timeline.ApplyEdit(env.Id, env.Text); ok {
			s.view.MessageUpdated(*e)
		}
	case TypeDelete:
		if e, ok := s.timeline.ApplyDelete(env.Id); ok {
			s.view.MessageUpdated(*e)
		}
	case TypePin:
		if e, ok := s.pins.Toggle(env.Id, env.Pinned, s.timeline); ok {
			s.view.MessageUpdated(*e)
		}
		if s.ctx.Err() != nil {
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.RefreshPins(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Printf("refresh pins: %v", err)
			}
		}()
	}
}

func (s *Session) receiveMessage(msg types.Message) {
	e, change := s.timeline.Reconcile(msg, s.clientId)

	switch change {
	case ChangeAdded:
		s.markLiked(e)
		if !e.Outgoing {
			s.stats.Incr(stats.MessagesReceived)
		}
		s.view.MessageAdded(*e)
	case ChangeUpdated:
		s.stats.Incr(stats.MessagesAcked)
		s.stats.Decr(stats.PendingMessages)
		s.view.MessageUpdated(*e)
	case ChangeRemoved:
		s.stats.Incr(stats.MessagesAcked)
		s.stats.Decr(stats.PendingMessages)
		s.view.TimelineReset(s.room, s.timeline.Entries())
	}
}

func (s *Session) markLiked(e *Entry) {
	liked, err := s.prefs.MessageLiked(e.Id)
	if err != nil {
		s.log.Printf("read liked flag for %d: %v", e.Id, err)
		return
	}
	e.Liked = liked
}

func (s *Session) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTs {
		ts = s.lastTs + 1
	}
	s.lastTs = ts
	return ts
}

// Send renders text as a pending outgoing message and queues it on the
// socket. A non-zero replyTo attaches a snapshot of the target if it is in
// the timeline.
func (s *Session) Send(text string, replyTo int64) (Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Entry{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return Entry{}, ErrNoRoom
	}

	msg := types.Message{
		Room:      s.room,
		Author:    s.name,
		Text:      text,
		Timestamp: s.nextTimestamp(),
		ClientId:  s.clientId,
		ReplyTo:   replyTo,
	}
	if replyTo != 0 {
		msg.Reply = s.timeline.ReplyRef(replyTo)
	}

	// the echo is handled under s.mu, so it cannot overtake the pending entry
	if !s.sender.Send(NewPublish(msg)) {
		return Entry{}, ErrNotConnected
	}

	e := s.timeline.AddPending(msg)
	s.stats.Incr(stats.MessagesSent)
	s.stats.Incr(stats.PendingMessages)
	s.view.MessageAdded(*e)

	return *e, nil
}

// lookupConfirmed returns the current room if id is an acknowledged entry
// in the timeline.
func (s *Session) lookupConfirmed(id int64) (types.RoomKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timeline.Lookup(id)
	if !ok || e.Pending {
		return "", ErrUnknownMessage
	}
	return s.room, nil
}

// Edit changes the text of message id on the server, applies it locally
// and notifies the room.
func (s *Session) Edit(ctx context.Context, id int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	room, err := s.lookupConfirmed(id)
	if err != nil {
		return err
	}

	msg, err := s.api.EditMessage(ctx, id, text)
	if err != nil {
		return fmt.Errorf("edit message %d: %w", id, err)
	}
	if msg.Text != "" {
		text = msg.Text
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room != s.room {
		return nil
	}
	if e, ok := s.timeline.ApplyEdit(id, text); ok {
		s.view.MessageUpdated(*e)
	}
	if !s.sender.Send(NewEdit(room, id, text)) {
		s.log.Printf("edit of %d saved but not broadcast", id)
	}

	return nil
}

// Delete soft-deletes message id on the server, tombstones it locally and
// notifies the room.
func (s *Session) Delete(ctx context.Context, id int64) error {
	room, err := s.lookupConfirmed(id)
	if err != nil {
		return err
	}

	if err := s.api.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room != s.room {
		return nil
	}
	if e, ok := s.timeline.ApplyDelete(id); ok {
		s.view.MessageUpdated(*e)
	}
	if !s.sender.Send(NewDelete(room, id)) {
		s.log.Printf("delete of %d saved but not broadcast", id)
	}

	return nil
}

// SetPinned toggles the marker on id immediately and sends the pin event.
// The tray itself is only rebuilt from the server when the event comes
// back, like any other pin event.
func (s *Session) SetPinned(id int64, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timeline.Lookup(id)
	if !ok || e.Pending {
		return ErrUnknownMessage
	}

	if !s.sender.Send(NewPin(s.room, id, pinned)) {
		return ErrNotConnected
	}

	if e, ok := s.pins.Toggle(id, pinned, s.timeline); ok {
		s.view.MessageUpdated(*e)
	}

	return nil
}

// RefreshPins refetches the pinned list for the current room and replaces
// the tray with it.
func (s *Session) RefreshPins(ctx context.Context) error {
	s.mu.Lock()
	room, gen := s.room, s.gen
	s.mu.Unlock()

	if room == "" {
		return ErrNoRoom
	}

	return s.loadPins(ctx, room, gen)
}

func (s *Session) loadPins(ctx context.Context, room types.RoomKey, gen uint64) error {
	pinned, err := s.api.Pins(ctx, room)
	if err != nil {
		return fmt.Errorf("load pins for %s: %w", room, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return nil
	}

	s.pins.Render(pinned, s.timeline)
	s.view.PinsChanged(room, s.pins.Pins())

	return nil
}

// SwitchRoom joins key, clears the timeline unless keep is set, then loads
// the room's history and pinned messages. If another switch starts before
// this one finishes, its results are discarded.
func (s *Session) SwitchRoom(ctx context.Context, key types.RoomKey, keep bool) error {
	if _, err := types.ParseRoomKey(key.String()); err != nil {
		return err
	}

	s.mu.Lock()
	if s.cancelSwitch != nil {
		s.cancelSwitch()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancelSwitch = cancel
	defer cancel()

	s.room = key
	s.members = 0
	// echoes for sends made in another room are filtered out, so they
	// would never be acknowledged
	for range s.timeline.DropPending() {
		s.stats.Decr(stats.PendingMessages)
	}
	if !keep {
		s.timeline.Reset()
		s.pins.Clear(s.timeline)
	}

	// a connection that is not up yet announces the room in Hello
	if s.state == StateOnline {
		s.announceLocked()
	}
	if err := s.prefs.SetRoom(key); err != nil {
		s.log.Printf("save current room: %v", err)
	}

	s.view.TimelineReset(key, s.timeline.Entries())
	s.view.PinsChanged(key, s.pins.Pins())
	s.mu.Unlock()

	history, err := s.api.History(ctx, key, 0, s.historyLimit)
	if err != nil {
		if s.superseded(gen) {
			return nil
		}
		return fmt.Errorf("load history for %s: %w", key, err)
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Printf("discarding stale history for %s", key)
		return nil
	}
	s.prependLocked(history)
	s.mu.Unlock()

	if err := s.loadPins(ctx, key, gen); err != nil {
		if s.superseded(gen) {
			return nil
		}
		return err
	}

	return nil
}

func (s *Session) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}

func (s *Session) prependLocked(history []types.Message) int {
	added := s.timeline.Prepend(history, s.clientId)
	for _, e := range added {
		s.markLiked(e)
	}
	s.timeline.SetPinned(pinIds(s.pins.Pins()))
	s.view.TimelineReset(s.room, s.timeline.Entries())
	return len(added)
}

func pinIds(pins []types.Message) []int64 {
	ids := make([]int64, len(pins))
	for i, m := range pins {
		ids[i] = m.Id
	}
	return ids
}

// LoadOlder prepends the page of history before the oldest loaded message
// and returns how many messages were added.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	room, gen := s.room, s.gen
	before := s.timeline.OldestId()
	s.mu.Unlock()

	if room == "" {
		return 0, ErrNoRoom
	}

	history, err := s.api.History(ctx, room, before, s.historyLimit)
	if err != nil {
		return 0, fmt.Errorf("load history for %s: %w", room, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return 0, nil
	}

	return s.prependLocked(history), nil
}

// ToggleLike flips and persists the liked flag of message id.
func (s *Session) ToggleLike(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timeline.Lookup(id)
	if !ok || e.Pending {
		return false, ErrUnknownMessage
	}

	liked := !e.Liked
	if err := s.prefs.SetMessageLiked(id, liked); err != nil {
		return e.Liked, fmt.Errorf("save liked flag: %w", err)
	}

	e.Liked = liked
	s.view.MessageUpdated(*e)

	return liked, nil
}

// ListRooms fetches the room list and caches it on the session.
func (s *Session) ListRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := s.api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	s.mu.Lock()
	s.rooms = slices.Clone(rooms)
	s.mu.Unlock()

	return rooms, nil
}

func (s *Session) CreateRoom(ctx context.Context, req types.CreateRoomRequest) (types.Room, error) {
	if _, err := types.ParseRoomKey(types.NewRoomKey(req.Subject, req.Slug).String()); err != nil {
		return types.Room{}, err
	}

	room, err := s.api.CreateRoom(ctx, req)
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	s.mu.Lock()
	s.rooms = append(s.rooms, room)
	s.mu.Unlock()

	return room, nil
}
