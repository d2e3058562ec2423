package chat

import "github.com/npezzotti/studychat/internal/types"

// View receives snapshots of session state to render. Methods are called
// while the session is locked and must not call back into it.
type View interface {
	MessageAdded(e Entry)
	MessageUpdated(e Entry)
	TimelineReset(room types.RoomKey, entries []Entry)
	PinsChanged(room types.RoomKey, pins []types.Message)
	RoomJoined(room types.RoomKey, members int)
	ConnectionChanged(state State)
}

type NopView struct{}

func (NopView) MessageAdded(Entry)                         {}
func (NopView) MessageUpdated(Entry)                       {}
func (NopView) TimelineReset(types.RoomKey, []Entry)       {}
func (NopView) PinsChanged(types.RoomKey, []types.Message) {}
func (NopView) RoomJoined(types.RoomKey, int)              {}
func (NopView) ConnectionChanged(State)                    {}
