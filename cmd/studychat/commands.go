package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/npezzotti/studychat/internal/chat"
	"github.com/npezzotti/studychat/internal/types"
)

var errUsage = errors.New("usage")

const helpText = `commands:
  <text>              send a message
  /reply ID TEXT      reply to message ID
  /edit ID TEXT       edit your message ID
  /delete ID          delete your message ID
  /pin ID, /unpin ID  pin or unpin message ID
  /like ID            toggle your like on message ID
  /join SUBJECT/SLUG  switch rooms
  /older              load older messages
  /pins               show pinned messages
  /rooms              list rooms
  /nick NAME          change display name
  /compact            toggle message times
  /quit               leave
`

// command is one parsed line of user input.
type command struct {
	name string
	id   int64
	text string
	room types.RoomKey
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "say", text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	cmd := command{name: name}

	switch name {
	case "reply", "edit":
		idStr, text, _ := strings.Cut(rest, " ")
		id, err := parseId(idStr)
		if err != nil {
			return command{}, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return command{}, fmt.Errorf("%w: /%s ID TEXT", errUsage, name)
		}
		cmd.id, cmd.text = id, text
	case "delete", "pin", "unpin", "like":
		id, err := parseId(rest)
		if err != nil {
			return command{}, err
		}
		cmd.id = id
	case "join":
		key, err := types.ParseRoomKey(rest)
		if err != nil {
			return command{}, fmt.Errorf("%w: /join SUBJECT/SLUG", errUsage)
		}
		cmd.room = key
	case "nick":
		if rest == "" {
			return command{}, fmt.Errorf("%w: /nick NAME", errUsage)
		}
		cmd.text = rest
	case "older", "pins", "rooms", "compact", "quit", "help":
	default:
		return command{}, fmt.Errorf("unknown command /%s", name)
	}

	return cmd, nil
}

func parseId(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: message ID must be a positive number", errUsage)
	}
	return id, nil
}

// runCommand executes cmd against the session. It reports true when the
// user asked to quit. Commands that change local state are handled by
// console.run.
func runCommand(ctx context.Context, s *chat.Session, cmd command, out io.Writer) (bool, error) {
	switch cmd.name {
	case "say":
		_, err := s.Send(cmd.text, 0)
		return false, err
	case "reply":
		_, err := s.Send(cmd.text, cmd.id)
		return false, err
	case "edit":
		return false, s.Edit(ctx, cmd.id, cmd.text)
	case "delete":
		return false, s.Delete(ctx, cmd.id)
	case "pin", "unpin":
		return false, s.SetPinned(cmd.id, cmd.name == "pin")
	case "like":
		liked, err := s.ToggleLike(cmd.id)
		if err != nil {
			return false, err
		}
		if liked {
			fmt.Fprintf(out, "* liked #%d\n", cmd.id)
		} else {
			fmt.Fprintf(out, "* unliked #%d\n", cmd.id)
		}
	case "join":
		return false, s.SwitchRoom(ctx, cmd.room, false)
	case "older":
		n, err := s.LoadOlder(ctx)
		if err != nil {
			return false, err
		}
		if n == 0 {
			fmt.Fprintln(out, "* no older messages")
		}
	case "pins":
		return false, s.RefreshPins(ctx)
	case "rooms":
		rooms, err := s.ListRooms(ctx)
		if err != nil {
			return false, err
		}
		for _, r := range rooms {
			fmt.Fprintf(out, "  %s  %s\n", r.Key(), r.Title)
		}
	case "help":
		fmt.Fprint(out, helpText)
	case "quit":
		return true, nil
	}

	return false, nil
}
