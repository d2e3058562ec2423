package chat

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/studychat/internal/types"
)

const (
	Tombstone    = "[message deleted]"
	EditedMarker = " (edited)"

	replySnippetLen = 80
)

// Entry is one rendered message in a room's timeline.
type Entry struct {
	types.Message
	// Outgoing is set for messages sent by this client.
	Outgoing bool
	// Pending is set until the server echo assigns an id.
	Pending bool
	Pinned  bool
	Liked   bool
}

// Display is the text shown for the entry.
func (e Entry) Display() string {
	if e.Deleted {
		return Tombstone
	}
	if e.Edited {
		return e.Text + EditedMarker
	}
	return e.Text
}

// Change describes what a reconcile did to the timeline.
type Change int

const (
	ChangeNone Change = iota
	ChangeAdded
	ChangeUpdated
	ChangeRemoved
)

// Timeline is the ordered message list of the current room. Entries with
// a server id are indexed by id, with at most one entry per id; optimistic
// entries are indexed by their send timestamp until acknowledged.
type Timeline struct {
	entries []*Entry
	byId    map[int64]*Entry
	pending map[int64]*Entry
}

func NewTimeline() *Timeline {
	return &Timeline{
		byId:    make(map[int64]*Entry),
		pending: make(map[int64]*Entry),
	}
}

func (t *Timeline) Reset() {
	t.entries = nil
	clear(t.byId)
	clear(t.pending)
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entries returns a snapshot of the timeline in display order.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func (t *Timeline) Lookup(id int64) (*Entry, bool) {
	e, ok := t.byId[id]
	return e, ok
}

func (t *Timeline) Pending(ts int64) (*Entry, bool) {
	e, ok := t.pending[ts]
	return e, ok
}

func (t *Timeline) PendingCount() int {
	return len(t.pending)
}

// OldestId returns the smallest server id in the timeline, or 0.
func (t *Timeline) OldestId() int64 {
	var oldest int64
	for id := range t.byId {
		if oldest == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}

// AddPending appends an optimistic outgoing message keyed by its timestamp.
func (t *Timeline) AddPending(msg types.Message) *Entry {
	msg.Id = 0
	e := &Entry{Message: msg, Outgoing: true, Pending: true}
	t.entries = append(t.entries, e)
	t.pending[msg.Timestamp] = e
	return e
}

// Reconcile applies an inbound message. A message whose client id equals
// localClientId acknowledges the pending entry with the same timestamp;
// anything else is appended as a new entry unless its id is already shown.
func (t *Timeline) Reconcile(msg types.Message, localClientId string) (*Entry, Change) {
	own := localClientId != "" && msg.ClientId == localClientId

	if own {
		if e, ok := t.pending[msg.Timestamp]; ok {
			delete(t.pending, msg.Timestamp)

			if existing, dup := t.byId[msg.Id]; dup {
				t.remove(e)
				return existing, ChangeRemoved
			}

			e.Id = msg.Id
			e.Pending = false
			t.byId[msg.Id] = e
			return e, ChangeUpdated
		}
	}

	if existing, dup := t.byId[msg.Id]; dup {
		return existing, ChangeNone
	}

	e := &Entry{Message: msg, Outgoing: own}
	t.entries = append(t.entries, e)
	t.byId[msg.Id] = e
	return e, ChangeAdded
}

// DropPending removes every unacknowledged entry and returns how many were
// removed.
func (t *Timeline) DropPending() int {
	n := len(t.pending)
	if n == 0 {
		return 0
	}

	t.entries = slices.DeleteFunc(t.entries, func(e *Entry) bool { return e.Pending })
	clear(t.pending)
	return n
}

func (t *Timeline) remove(target *Entry) {
	t.entries = slices.DeleteFunc(t.entries, func(e *Entry) bool { return e == target })
}

// Prepend inserts an older page of history ahead of the current entries,
// skipping ids that are already present. It returns the entries added.
func (t *Timeline) Prepend(history []types.Message, localClientId string) []*Entry {
	added := make([]*Entry, 0, len(history))
	for _, msg := range history {
		if _, dup := t.byId[msg.Id]; dup || msg.Id == 0 {
			continue
		}

		e := &Entry{Message: msg, Outgoing: localClientId != "" && msg.ClientId == localClientId}
		if msg.Deleted {
			e.Text = Tombstone
		}
		t.byId[msg.Id] = e
		added = append(added, e)
	}

	t.entries = append(added, t.entries...)
	return added
}

// ApplyEdit replaces the text of message id and marks it edited.
func (t *Timeline) ApplyEdit(id int64, text string) (*Entry, bool) {
	e, ok := t.byId[id]
	if !ok || e.Deleted {
		return e, false
	}

	e.Text = text
	e.Edited = true
	return e, true
}

// ApplyDelete replaces message id with a tombstone, keeping its position.
func (t *Timeline) ApplyDelete(id int64) (*Entry, bool) {
	e, ok := t.byId[id]
	if !ok {
		return nil, false
	}

	e.Text = Tombstone
	e.Deleted = true
	e.Edited = false
	return e, true
}

// ReplyRef builds the reply snapshot for id from the in-memory table, or
// returns nil if the message is not in the timeline.
func (t *Timeline) ReplyRef(id int64) *types.ReplyRef {
	e, ok := t.byId[id]
	if !ok {
		return nil
	}

	text := e.Text
	if e.Deleted {
		text = Tombstone
	}

	return &types.ReplyRef{
		Id:      id,
		Author:  e.Author,
		Snippet: truncate(text, replySnippetLen),
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	return strings.TrimRight(string(runes[:n-1]), " ") + "…"
}

// SetPinned marks exactly the given ids as pinned and clears every other
// marker. It returns how many markers were set.
func (t *Timeline) SetPinned(ids []int64) int {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	marked := 0
	for _, e := range t.entries {
		_, e.Pinned = want[e.Id]
		if e.Id == 0 {
			e.Pinned = false
		}
		if e.Pinned {
			marked++
		}
	}

	return marked
}
