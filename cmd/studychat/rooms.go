package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/spf13/cobra"
)

var roomTitle string

func init() {
	createRoomCmd.Flags().StringVar(&roomTitle, "title", "", "room title")
	roomsCmd.AddCommand(createRoomCmd, likeRoomCmd, unlikeRoomCmd)
	rootCmd.AddCommand(roomsCmd)
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List chat rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, apiClient, err := openClient()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		rooms, err := apiClient.ListRooms(ctx)
		if err != nil {
			return explain(fmt.Errorf("list rooms: %w", err))
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROOM\tTITLE\tMEMBERS\tLIKED")
		for _, r := range rooms {
			liked, err := st.RoomLiked(r.Key())
			if err != nil {
				logger.Printf("read liked flag for %s: %v", r.Key(), err)
			}
			mark := ""
			if liked {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Key(), r.Title, humanize.Comma(int64(r.MemberCount)), mark)
		}

		return w.Flush()
	},
}

var createRoomCmd = &cobra.Command{
	Use:   "create SUBJECT/SLUG",
	Short: "Create a chat room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := types.ParseRoomKey(args[0])
		if err != nil {
			return err
		}

		st, apiClient, err := openClient()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		room, err := apiClient.CreateRoom(ctx, types.CreateRoomRequest{
			Subject: key.Subject(),
			Slug:    key.Slug(),
			Title:   roomTitle,
		})
		if err != nil {
			return explain(fmt.Errorf("create room: %w", err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", room.Key())
		return nil
	},
}

var likeRoomCmd = &cobra.Command{
	Use:   "like SUBJECT/SLUG",
	Short: "Mark a room as liked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRoomLiked(cmd, args[0], true)
	},
}

var unlikeRoomCmd = &cobra.Command{
	Use:   "unlike SUBJECT/SLUG",
	Short: "Clear a room's liked mark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRoomLiked(cmd, args[0], false)
	},
}

// setRoomLiked saves the liked mark shown by `studychat rooms`. Likes are
// local and never sent to the server.
func setRoomLiked(cmd *cobra.Command, arg string, liked bool) error {
	key, err := types.ParseRoomKey(arg)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SetRoomLiked(key, liked); err != nil {
		return err
	}

	verb := "liked"
	if !liked {
		verb = "unliked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, key)
	return nil
}
