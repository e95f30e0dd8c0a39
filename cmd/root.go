// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

var (
	cfgFile string

	// Populated by PersistentPreRunE for every subcommand.
	cfg    *config.Config
	logger *zap.Logger
)

// NewRootCommand builds the base command and attaches the subcommands. A
// fresh instance per invocation keeps flag state from leaking between runs.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "webpilot",
		Short:   "Webpilot drives a web browser with a vision-action model.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = initializeConfig()
			if err != nil {
				return err
			}

			logger, err = observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			logger.Info("Starting webpilot", zap.String("version", Version))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newBrowseCommand())
	root.AddCommand(newServeCommand())

	return root
}

// Execute runs the root command and flushes the logger on the way out.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	err := root.ExecuteContext(ctx)

	if logger != nil {
		if err != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		observability.Sync(logger)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	return config.NewFromViper(v)
}
