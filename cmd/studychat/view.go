package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/npezzotti/studychat/internal/chat"
	"github.com/npezzotti/studychat/internal/types"
)

// prefCompact hides message times.
const prefCompact = "compact"

// terminalView renders session events as lines of text. Updates to an
// existing message are printed again with a leading "~".
type terminalView struct {
	mu      sync.Mutex
	out     io.Writer
	now     func() time.Time
	compact atomic.Bool
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out, now: time.Now}
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *terminalView) SetCompact(on bool) {
	v.compact.Store(on)
}

func (v *terminalView) Compact() bool {
	return v.compact.Load()
}

func (v *terminalView) MessageAdded(e chat.Entry) {
	v.printf("%s", formatEntry(e, v.now(), "", v.Compact()))
}

func (v *terminalView) MessageUpdated(e chat.Entry) {
	v.printf("%s", formatEntry(e, v.now(), "~ ", v.Compact()))
}

func (v *terminalView) TimelineReset(room types.RoomKey, entries []chat.Entry) {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", room)
	now, compact := v.now(), v.Compact()
	for _, e := range entries {
		b.WriteString(formatEntry(e, now, "", compact))
	}
	v.printf("%s", b.String())
}

func (v *terminalView) PinsChanged(room types.RoomKey, pins []types.Message) {
	if len(pins) == 0 {
		v.printf("-- no pinned messages in %s --\n", room)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- pinned in %s --\n", room)
	for _, m := range pins {
		fmt.Fprintf(&b, "  #%d %s: %s\n", m.Id, m.Author, m.Text)
	}
	b.WriteString("--\n")
	v.printf("%s", b.String())
}

func (v *terminalView) RoomJoined(room types.RoomKey, members int) {
	noun := "members"
	if members == 1 {
		noun = "member"
	}
	v.printf("* joined %s, %s %s online\n", room, humanize.Comma(int64(members)), noun)
}

func (v *terminalView) ConnectionChanged(state chat.State) {
	v.printf("* connection %s\n", state)
}

// formatEntry renders one timeline entry, preceded by its reply preview.
// Compact entries leave out the time.
func formatEntry(e chat.Entry, now time.Time, prefix string, compact bool) string {
	var b strings.Builder

	if e.Reply != nil {
		fmt.Fprintf(&b, "%s    ↳ %s: %s\n", prefix, e.Reply.Author, e.Reply.Snippet)
	} else if e.ReplyTo != 0 {
		fmt.Fprintf(&b, "%s    ↳ #%d\n", prefix, e.ReplyTo)
	}

	id := "#-"
	if e.Id != 0 {
		id = fmt.Sprintf("#%d", e.Id)
	}

	if compact {
		fmt.Fprintf(&b, "%s%s %s: %s", prefix, id, e.Author, e.Display())
	} else {
		when := humanize.RelTime(time.UnixMilli(e.Timestamp), now, "ago", "from now")
		fmt.Fprintf(&b, "%s%s [%s] %s: %s", prefix, id, when, e.Author, e.Display())
	}

	var flags []string
	if e.Pending {
		flags = append(flags, "sending")
	}
	if e.Pinned {
		flags = append(flags, "pinned")
	}
	if e.Liked {
		flags = append(flags, "liked")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
	}
	b.WriteString("\n")

	return b.String()
}
