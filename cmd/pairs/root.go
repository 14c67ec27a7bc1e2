package main

import (
	"fmt"

	"github.com/Sternrassler/pairs-client/pkg/client"
	"github.com/Sternrassler/pairs-client/pkg/config"
	"github.com/Sternrassler/pairs-client/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	baseURL    string
	logLevel   string

	cfg      *config.Config
	logger   zerolog.Logger
	closeLog func() error
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "pairs",
		Short:         "Browse and proxy the cursor-paginated pairs endpoint",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: ./pairs.yaml or the user config dir)")
	flags.StringVar(&a.baseURL, "base-url", "", "pairs service base URL (overrides client.base_url)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error, disabled")

	rootCmd.AddCommand(
		newBrowseCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

// init loads configuration, applies flag overrides and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("base-url") {
		cfg.Client.BaseURL = a.baseURL
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logger, closeLog, err := logging.Open(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	a.cfg = cfg
	a.logger = logger.With().Str("component", "pairs-cli").Logger()
	a.closeLog = closeLog
	return nil
}

// newClient builds a client from the loaded configuration. The returned
// Redis client is nil when Redis is disabled.
func (a *app) newClient() (*client.Client, *redis.Client, error) {
	rc := a.cfg.NewRedisClient()

	c, err := client.New(a.cfg.ClientConfig(rc))
	if err != nil {
		if rc != nil {
			rc.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}
	return c, rc, nil
}
