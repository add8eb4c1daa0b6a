package main

import (
	"fmt"
	"os"

	"github.com/inkwell/internal/config"
	"github.com/inkwell/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootOptions 保存所有子命令共享的全局参数
type rootOptions struct {
	ConfigFile string
	Database   string
	LogLevel   string

	cfg config.AppConfig
	log zerolog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "inkwell",
		Short:         "Inkwell blog backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database (overrides DATABASE_PATH)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newCreateUserCommand(opts))
	cmd.AddCommand(newSweepTagsCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))

	return cmd
}

// load 读取配置并按命令行参数覆盖
func (o *rootOptions) load() error {
	if o.ConfigFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.ConfigFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.Database != "" {
		cfg.DatabasePath = o.Database
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}

	o.cfg = cfg
	o.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	return nil
}
