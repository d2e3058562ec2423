package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/npezzotti/studychat/internal/api"
	"github.com/npezzotti/studychat/internal/config"
	"github.com/npezzotti/studychat/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	serverURL  string
	stateDir   string
	debugAddr  string
	logFile    string

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "studychat",
	Short: "Terminal client for study room chat",
	Long: `studychat connects to a study room chat server, keeps the connection
alive across network drops and renders the room's messages, replies and
pinned messages in the terminal.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file with STUDYCHAT_* overrides")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "chat server url")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory for the local state database")
	rootCmd.PersistentFlags().StringVar(&debugAddr, "debug-addr", "", "address to serve /debug/vars on")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

// setup resolves the configuration from defaults, the config file, the
// environment and flags, in that order.
func setup(cmd *cobra.Command, args []string) error {
	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	logger = log.New(out, "[studychat] ", log.LstdFlags)

	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if err := config.LoadEnv(cfg, envFile); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = serverURL
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = stateDir
	}
	if flags.Changed("debug-addr") {
		cfg.DebugAddr = debugAddr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

func openStore() (*store.Store, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	return store.Open(filepath.Join(cfg.StateDir, "db"), logger)
}

// openClient opens the local state and an API client carrying the saved
// session token.
func openClient() (*store.Store, *api.Client, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	apiClient, err := api.NewClient(cfg.ServerURL, nil, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	token, err := st.Token()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if token != "" {
		checkSession(token)
		apiClient.SetToken(token)
	}

	return st, apiClient, nil
}

func checkSession(token string) {
	session, err := api.ParseSession(token)
	if err != nil {
		logger.Printf("saved token is unreadable: %v", err)
		return
	}
	if session.Expired(time.Now()) {
		logger.Println("saved session has expired, run `studychat login` again")
	}
}
