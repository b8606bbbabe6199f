// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pagewalk/internal/config"
	"github.com/xkilldash9x/pagewalk/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

var cfgFile string

// NewRootCmd builds the command tree. Each call returns an independent tree so
// tests can run commands without shared cobra state.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pagewalk",
		Short:         "pagewalk drives HTML sites the way a browser would, without rendering.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// Stdout carries command output; logs go to stderr.
			observability.Initialize(cfg.Logger(), zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Starting pagewalk", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newFetchCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// initializeConfig reads the config file and PAGEWALK_* environment variables
// into v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return bindFlags(cmd, v)
}

// bindFlags maps command flags onto their config keys so flags override the
// file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for key, flag := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

var flagBindings = map[string]string{
	"conversation.max_redirects":              "max-redirects",
	"conversation.user_agent":                 "user-agent",
	"conversation.auto_refresh":               "auto-refresh",
	"conversation.scripting.enabled":          "scripts",
	"conversation.auth.username":              "user",
	"conversation.exceptions_on_error_status": "fail-on-status",
	"network.timeout":                         "timeout",
	"network.ignore_tls_errors":               "insecure",
	"logger.level":                            "log-level",
}

// configFromContext returns the config stored by PersistentPreRunE.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
