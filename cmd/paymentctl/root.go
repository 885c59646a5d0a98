package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wekeepgrowing/payment-reconciler/internal/config"
	pkgconfig "github.com/wekeepgrowing/payment-reconciler/pkg/config"
	"github.com/wekeepgrowing/payment-reconciler/pkg/logger"
	"go.uber.org/zap"
)

const cliName = "paymentctl"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "Operate the payment reconciler: migrations, webhook replay and status lookups",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Service config file (defaults to CONFIG_PATH or ./configs/payment.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level for diagnostic output on stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(sessionStatusCmd())
	rootCmd.AddCommand(webhookStatusCmd())
	rootCmd.AddCommand(watchCmd())

	return rootCmd
}

// env bundles what every subcommand needs
type env struct {
	settings pkgconfig.Config
	config   *config.Config
	logger   *zap.Logger
}

// setup resolves flags (PAYMENTCTL_* env vars and configs/{APP_ENV}/paymentctl.yaml
// fill in unset ones), then loads the service config. Logs go to stderr so
// stdout stays machine readable.
func setup(cmd *cobra.Command) (*env, error) {
	settings, err := pkgconfig.Load(cliName, "", cmd)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path := settings.GetString("config"); path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	logCfg.Output = "stderr"
	logCfg.Level = settings.GetString("log-level")

	log, err := logger.NewZapLogger(logCfg, cliName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &env{settings: settings, config: cfg, logger: log}, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
