package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/tigerwatch/internal/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Store the API bearer token",
	Long:  "Store the API bearer token. With no argument the token is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		} else {
			t, err := readToken(cmd.InOrStdin())
			if err != nil {
				return err
			}
			token = t
		}
		store, err := auth.NewStore(cfg.TokenFile, logger)
		if err != nil {
			return fmt.Errorf("init credentials: %w", err)
		}
		return login(store, token, time.Now(), cmd.OutOrStdout())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := auth.NewStore(cfg.TokenFile, logger)
		if err != nil {
			return fmt.Errorf("init credentials: %w", err)
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// login stores token and describes it. An expired token is refused and the
// stored one left in place.
func login(store *auth.Store, token string, now time.Time, out io.Writer) error {
	token = strings.TrimSpace(token)
	claims, ok := auth.ParseClaims(token)
	if ok && claims.Expired(now) {
		return fmt.Errorf("token expired at %s", claims.ExpiresAt.Local().Format(time.RFC1123))
	}
	if err := store.Set(token); err != nil {
		return err
	}
	switch {
	case !ok:
		fmt.Fprintln(out, "Signed in (opaque token).")
	case claims.ExpiresAt.IsZero():
		fmt.Fprintf(out, "Signed in as %s.\n", claims.Subject)
	default:
		fmt.Fprintf(out, "Signed in as %s until %s.\n", claims.Subject, claims.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
