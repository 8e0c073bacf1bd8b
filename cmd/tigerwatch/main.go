// Command tigerwatch is the operator console for the tiger-trafficking
// investigation service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/tigerwatch/internal/config"
	"github.com/sweeney/tigerwatch/internal/logging"
)

var (
	cfg     config.Config
	verbose bool
	logger  = zap.NewNop()

	// flag overrides for environment settings
	apiURL    string
	wsURL     string
	tokenFile string
)

var rootCmd = &cobra.Command{
	Use:   "tigerwatch",
	Short: "Operator console for tiger-trafficking investigations",
	Long: `tigerwatch talks to the investigation API and its event channel.

Settings come from TIGERWATCH_* environment variables; flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = loadConfig(cmd); err != nil {
			return err
		}
		// The search screen owns the terminal; it sets up its own logger.
		if cmd.Name() == "search" {
			return nil
		}
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Investigation API base URL (TIGERWATCH_API_URL)")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws-url", "", "Event channel URL (TIGERWATCH_WS_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Bearer token file (TIGERWATCH_TOKEN_FILE)")

	rootCmd.AddCommand(serveCmd, searchCmd, classifyCmd, loginCmd, logoutCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		c.APIURL = apiURL
	}
	if flags.Changed("ws-url") {
		c.WSURL = wsURL
	}
	if flags.Changed("token-file") {
		c.TokenFile = tokenFile
	}
	if flags.Changed("http") {
		c.HTTPAddr = httpAddr
	}
	if flags.Changed("broker") {
		c.MQTTBroker = broker
	}
	if flags.Changed("heartbeat") {
		c.Heartbeat = heartbeat
	}
	if flags.Changed("feed-size") {
		c.FeedSize = feedSize
	}
	if flags.Changed("debounce") {
		c.SearchDebounce = searchDebounce
	}
	if err := c.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
