package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/s3bsync/s3bsync/internal/config"
	"github.com/s3bsync/s3bsync/internal/utils"
	"github.com/s3bsync/s3bsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "s3bsync",
		Short:         "Bidirectional syncing tool to sync local filesystem directories with S3 buckets.",
		Long:          "Bidirectional syncing tool to sync local filesystem directories with S3 buckets.\nThe program runs in sync mode by default.",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfig(cmd); err != nil {
				return err
			}
			setupLogger(viper.GetBool("debug"))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			slog.Debug("config", "mode", cfg.Mode, "file", cfg.SyncFile, "add", cfg.AddMaps, "remove", cfg.RemoveMaps,
				"region", cfg.Region, "endpoint", cfg.Endpoint, "access_key", utils.MaskSecret(cfg.AccessKey))

			return run(cmd.Context(), *cfg, cmd.OutOrStdout(), newS3Lister)
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.BoolP("init", "i", false, "Run in initialize mode. This allows tracking file management and directory options to be used.")
	flags.Bool("dump", false, "Dump s3sync state file configuration. --dryrun implicitly enabled.")
	flags.Bool("json", false, "With --dump, print the tracking state as JSON.")
	flags.Bool("dryrun", false, "Run program logic without making changes.")
	flags.Bool("purge", false, "Delete the tracking file if it exists. Requires --init.")
	flags.Bool("overwrite", false, "Overwrite tracking file with new directory maps instead of appending. Requires --init.")
	flags.StringArray("dir", nil, "Directory map `PATH=S3_DEST`, e.g. /home/josh/Documents=s3://joshstockin/Documents. Repeatable. Requires --init.")
	flags.StringArray("rmdir", nil, "Remove directory map `PATH=S3_DEST`. Repeatable. Requires --init.")
	flags.String("region", "", "AWS region used in sync mode")
	flags.String("endpoint", "", "S3 compatible endpoint URL used in sync mode")

	pflags := cmd.PersistentFlags()
	pflags.String("file", config.DefaultSyncFile, "The s3sync state file used to store tracking and state information. It should resolve to an absolute path.")
	pflags.Bool("debug", false, "Enable debug logging")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		stop()
		os.Exit(1)
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

// bindConfig lets S3BSYNC_* environment variables stand in for flags that were not given.
func bindConfig(cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		"file":     "file",
		"debug":    "debug",
		"region":   "region",
		"endpoint": "endpoint",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	viper.SetEnvPrefix("S3BSYNC")
	viper.AutomaticEnv()
	return nil
}

func configFromFlags(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	var mode config.Mode
	for flag, m := range map[string]config.Mode{
		"init":      config.ModeInit,
		"dump":      config.ModeDump,
		"dryrun":    config.ModeDryRun,
		"purge":     config.ModePurge,
		"overwrite": config.ModeOverwrite,
	} {
		set, err := flags.GetBool(flag)
		if err != nil {
			return nil, err
		}
		if set {
			mode |= m
		}
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return nil, err
	}

	var addMaps, removeMaps []config.DirMapping
	if mode.Has(config.ModeInit) {
		dirs, err := flags.GetStringArray("dir")
		if err != nil {
			return nil, err
		}
		if addMaps, err = config.ParseDirFlags(dirs); err != nil {
			return nil, err
		}
		rmdirs, err := flags.GetStringArray("rmdir")
		if err != nil {
			return nil, err
		}
		if removeMaps, err = config.ParseDirFlags(rmdirs); err != nil {
			return nil, err
		}
	} else {
		for _, flag := range []string{"purge", "overwrite", "dir", "rmdir"} {
			if flags.Changed(flag) {
				slog.Debug("ignoring option outside init mode", "flag", "--"+flag)
			}
		}
	}

	return &config.Config{
		Mode:       mode,
		SyncFile:   viper.GetString("file"),
		AddMaps:    addMaps,
		RemoveMaps: removeMaps,
		JSON:       asJSON,
		Debug:      viper.GetBool("debug"),
		Region:     viper.GetString("region"),
		Endpoint:   viper.GetString("endpoint"),
		AccessKey:  viper.GetString("access_key"),
		SecretKey:  viper.GetString("secret_key"),
	}, nil
}
