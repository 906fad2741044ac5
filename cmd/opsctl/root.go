package main

import (
	"fmt"
	"os"

	"opsdash/api"
	"opsdash/internal/config"
	"opsdash/internal/infra"
	"opsdash/internal/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// globalOptions 所有子命令共享的参数
type globalOptions struct {
	env        string
	configPath string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "opsctl",
		Short:         "Local administration for the ops dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.env, "env", envOr("APP_ENV", "dev"), "config environment name (config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("APP_CONFIG"), "explicit config file path")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newUserCmd(opts),
		newAuditCmd(opts),
		newServiceCmd(opts),
	)
	return rootCmd
}

// openStore 加载配置并打开数据库；CLI 只输出错误级别日志
func openStore(opts *globalOptions) (*config.Config, *gorm.DB, func(), error) {
	cfg, err := config.Load(opts.env, opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	zl, err := logger.New("error", "console", "stderr")
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := infra.OpenDatabase(&cfg.Database, zl)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = zl.Sync()
	}
	return cfg, db, closeFn, nil
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the users, audit_logs and service_status tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeFn, err := openStore(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := db.AutoMigrate(api.ModelsToMigrate()...); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
