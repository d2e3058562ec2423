package chat

import (
	"slices"

	"github.com/npezzotti/studychat/internal/types"
)

// PinTray mirrors the server's pinned list for the current room. It is
// always replaced wholesale; there is no incremental diff.
type PinTray struct {
	pins []types.Message
}

// Render replaces the tray with pinned and resets the per-message markers
// in t to match it.
func (p *PinTray) Render(pinned []types.Message, t *Timeline) int {
	p.pins = slices.Clone(pinned)

	ids := make([]int64, len(pinned))
	for i, m := range pinned {
		ids[i] = m.Id
	}

	return t.SetPinned(ids)
}

func (p *PinTray) Clear(t *Timeline) {
	p.Render(nil, t)
}

// Visible reports whether the tray has anything to show.
func (p *PinTray) Visible() bool {
	return len(p.pins) > 0
}

func (p *PinTray) Pins() []types.Message {
	return slices.Clone(p.pins)
}

// Toggle flips the marker on a single entry ahead of the authoritative
// refetch.
func (p *PinTray) Toggle(id int64, pinned bool, t *Timeline) (*Entry, bool) {
	e, ok := t.Lookup(id)
	if !ok {
		return nil, false
	}

	e.Pinned = pinned
	return e, true
}
