package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/studychat/internal/chat"
	"github.com/npezzotti/studychat/internal/stats"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var displayName string

func init() {
	chatCmd.Flags().StringVarP(&displayName, "name", "n", "", "display name")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [SUBJECT/SLUG]",
	Short: "Join a room and chat",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	st, apiClient, err := openClient()
	if err != nil {
		return err
	}
	defer st.Close()

	room, err := pickRoom(args, st.Room)
	if err != nil {
		return err
	}

	name, err := pickName(st.DisplayName)
	if err != nil {
		return err
	}
	if err := st.SetDisplayName(name); err != nil {
		return err
	}

	clientId, err := st.ClientId()
	if err != nil {
		return err
	}

	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	var debugSrv *http.Server
	if cfg.DebugAddr != "" {
		debugSrv = &http.Server{Addr: cfg.DebugAddr, Handler: mux}
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Println("debug server:", err)
			}
		}()
	}

	conn := chat.NewConn(chat.ConnConfig{
		URL:    wsURL,
		Header: apiClient.AuthHeader,
		Backoff: chat.Backoff{
			Initial:     cfg.Reconnect.InitialDelay,
			Max:         cfg.Reconnect.MaxDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
		SendRate:  rate.Limit(cfg.SendRate),
		SendBurst: cfg.SendBurst,
	}, logger, statsUpdater)

	out := cmd.OutOrStdout()
	view := newTerminalView(out)
	compact, err := st.Pref(prefCompact)
	if err != nil {
		logger.Printf("read %s preference: %v", prefCompact, err)
	}
	view.SetCompact(compact)

	session := chat.NewSession(logger, conn, apiClient, st, view, statsUpdater, chat.SessionConfig{
		ClientId:     clientId,
		DisplayName:  name,
		HistoryLimit: cfg.HistoryLimit,
	})
	defer session.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// the socket keeps retrying on its own, so a failed first load is not fatal
	if err := session.SwitchRoom(ctx, room, false); err != nil {
		fmt.Fprintf(out, "! %v\n", explain(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Run(ctx, session)
	}()

	c := &console{session: session, view: view, prefs: st, out: out}
	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		c.readInput(ctx, os.Stdin)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	running := true
	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case <-inputDone:
	case runErr = <-errCh:
		running = false
		logger.Println("connection:", runErr)
	}

	cancel()
	if running {
		<-errCh
	}

	if debugSrv != nil {
		shutDownCtx, shutDownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutDownCancel()
		if err := debugSrv.Shutdown(shutDownCtx); err != nil {
			logger.Println("debug server shutdown:", err)
		}
	}

	if errors.Is(runErr, chat.ErrOffline) {
		return fmt.Errorf("gave up reconnecting to %s", cfg.ServerURL)
	}

	return nil
}

// pickRoom chooses the room from the argument, the config, or the room
// the user last had open.
func pickRoom(args []string, saved func() (types.RoomKey, error)) (types.RoomKey, error) {
	switch {
	case len(args) > 0:
		return types.ParseRoomKey(args[0])
	case cfg.Room != "":
		return types.ParseRoomKey(cfg.Room)
	}

	key, err := saved()
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("no room given and no previous room saved")
	}

	return key, nil
}

func pickName(saved func() (string, error)) (string, error) {
	if displayName != "" {
		return displayName, nil
	}

	name, err := saved()
	if err != nil {
		return "", err
	}
	if name != "" {
		return name, nil
	}
	if cfg.DisplayName != "" {
		return cfg.DisplayName, nil
	}

	return "anonymous", nil
}

// localPrefs is the persisted state the console changes directly.
type localPrefs interface {
	SetDisplayName(name string) error
	SetPref(name string, on bool) error
}

// console connects user input to the session, the view and the local
// store.
type console struct {
	session *chat.Session
	view    *terminalView
	prefs   localPrefs
	out     io.Writer
}

// readInput runs user commands until EOF, /quit or ctx is done.
func (c *console) readInput(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		cmd, err := parseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
			continue
		}
		if cmd.name == "" {
			continue
		}

		quit, err := c.run(ctx, cmd)
		if err != nil {
			fmt.Fprintf(c.out, "! %v\n", explain(err))
			continue
		}
		if quit {
			return
		}
	}
}

func (c *console) run(ctx context.Context, cmd command) (bool, error) {
	switch cmd.name {
	case "nick":
		c.session.SetDisplayName(cmd.text)
		if err := c.prefs.SetDisplayName(cmd.text); err != nil {
			return false, fmt.Errorf("save display name: %w", err)
		}
		return false, nil
	case "compact":
		on := !c.view.Compact()
		if err := c.prefs.SetPref(prefCompact, on); err != nil {
			return false, fmt.Errorf("save %s preference: %w", prefCompact, err)
		}
		c.view.SetCompact(on)
		if on {
			fmt.Fprintln(c.out, "* compact view on")
		} else {
			fmt.Fprintln(c.out, "* compact view off")
		}
		return false, nil
	}

	return runCommand(ctx, c.session, cmd, c.out)
}
