// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wizprobe/internal/config"
	"github.com/xkilldash9x/wizprobe/internal/observability"
)

// ErrDefectsFound is returned by commands whose report contains defects.
var ErrDefectsFound = errors.New("defects found")

type ctxKey struct{}

// NewRootCommand builds a fresh command tree with its own viper instance, so
// flags and configuration never leak between executions.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "wizprobe",
		Short:         "wizprobe drives the construction forecast wizard and reports regressions.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfigFlags(v, cmd); err != nil {
				return err
			}
			cfg, err := initializeConfig(v, cfgFile)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "wizprobe"})
				return err
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version), zap.String("config_file", v.ConfigFileUsed()))
			cmd.SetContext(context.WithValue(cmd.Context(), ctxKey{}, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./wizprobe.yaml or $XDG_CONFIG_HOME/wizprobe/wizprobe.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newInspectCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with ctx, logging failures other than defects.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	switch {
	case err == nil, errors.Is(err, ErrDefectsFound), errors.Is(err, ErrRunsDiffer):
	case errors.Is(err, context.Canceled):
		observability.GetLogger().Warn("Interrupted.")
	default:
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and WIZPROBE_ environment variables
// into v and builds the validated configuration.
func initializeConfig(v *viper.Viper, cfgFile string) (*config.Config, error) {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "wizprobe"))
		v.SetConfigName("wizprobe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WIZPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return config.NewConfigFromViper(v)
}

// configFrom returns the configuration stored by the root command.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(ctxKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// configKeyAnnotation marks a flag that overrides a configuration key.
const configKeyAnnotation = "wizprobe_config_key"

// bindFlag links the flag name of cmd to the configuration key. The binding is
// applied only when cmd is the one being executed, so several commands may
// override the same key.
func bindFlag(cmd *cobra.Command, name, key string) {
	if err := cmd.Flags().SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("flag --%s is not defined on %s", name, cmd.Name()))
	}
}

func bindConfigFlags(v *viper.Viper, cmd *cobra.Command) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		if bindErr := v.BindPFlag(keys[0], f); bindErr != nil {
			err = fmt.Errorf("failed to bind flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}
