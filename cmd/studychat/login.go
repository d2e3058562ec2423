package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var password string

func init() {
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin if omitted)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login EMAIL",
	Short: "Log in and save the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, apiClient, err := openClient()
		if err != nil {
			return err
		}
		defer st.Close()

		if password == "" {
			password, err = readPassword(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		user, token, err := apiClient.Login(ctx, args[0], password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		if err := st.SetToken(token); err != nil {
			return err
		}

		name, err := st.DisplayName()
		if err != nil {
			return err
		}
		if name == "" {
			if err := st.SetDisplayName(user.Username); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", user.Username)
		return nil
	},
}

// readPassword prompts for a password, without echo when stdin is a
// terminal.
func readPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(b), err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openClient()
		if err != nil {
			return err
		}
		defer st.Close()

		return st.SetToken("")
	},
}
