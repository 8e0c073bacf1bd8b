package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/api"
	"github.com/sweeney/tigerwatch/internal/auth"
	"github.com/sweeney/tigerwatch/internal/logging"
	"github.com/sweeney/tigerwatch/internal/tui"
)

var (
	searchDebounce time.Duration
	searchLogFile  string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the tiger registry interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.NewNop()
		if searchLogFile != "" {
			l, err := logging.ToFile(searchLogFile, verbose)
			if err != nil {
				return err
			}
			defer l.Sync()
			log = l
		}

		store, err := auth.NewStore(cfg.TokenFile, log)
		if err != nil {
			return fmt.Errorf("init credentials: %w", err)
		}
		if !store.Authenticated() {
			return fmt.Errorf("not signed in: run tigerwatch login")
		}
		client, err := api.New(cfg.APIURL, api.Options{Tokens: store, Logger: log.Named("api")})
		if err != nil {
			return fmt.Errorf("init api client: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return tui.Run(ctx, client, cfg.SearchDebounce, log)
	},
}

func init() {
	searchCmd.Flags().DurationVar(&searchDebounce, "debounce", 0, "Delay after the last keystroke before searching (TIGERWATCH_SEARCH_DEBOUNCE)")
	searchCmd.Flags().StringVar(&searchLogFile, "log-file", "", "Write logs to this file while the screen is open")
}
