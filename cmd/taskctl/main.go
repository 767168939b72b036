// Package main implements taskctl, the operator CLI for the task API.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"taskapi/internal/config"
	"taskapi/internal/db"
	"taskapi/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "taskctl",
		Short:        "Administer the task API database",
		SilenceUsage: true,
	}
	addGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateUserCmd(opts),
		newDeleteUserCmd(opts),
	)
	return root
}

func addGlobalFlags(flags *pflag.FlagSet, opts *globalOptions) {
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to a TOML config file")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// session is what every subcommand needs.
type session struct {
	cfg    *config.Config
	db     *gorm.DB
	logger *slog.Logger
}

func (s *session) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// open loads configuration and connects to the configured database.
func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	logger, err := logging.New(cmd.ErrOrStderr(), o.logLevel, "text")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, db: gormDB, logger: logger}, nil
}
