package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/s3bsync/s3bsync/internal/config"
	"github.com/s3bsync/s3bsync/internal/remote"
	"github.com/s3bsync/s3bsync/internal/scan"
	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/s3bsync/s3bsync/internal/tracking"
)

type listerFactory func(ctx context.Context, cfg config.Config) (remote.ObjectLister, error)

func newS3Lister(ctx context.Context, cfg config.Config) (remote.ObjectLister, error) {
	return remote.NewS3ListerWithConfig(ctx, &remote.S3Config{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
}

// run drives one invocation against the tracking file named in cfg. cfg must be validated.
func run(ctx context.Context, cfg config.Config, out io.Writer, newLister listerFactory) error {
	store := tracking.New(cfg.SyncFile)

	if cfg.Mode.Has(config.ModePurge) {
		if cfg.Mode.Has(config.ModeDryRun) {
			slog.Info("dry run, not purging", "file", store.Path())
			return nil
		}
		if err := store.Purge(); err != nil {
			return err
		}
		slog.Info("tracking file purged", "file", store.Path())
		return nil
	}

	exists := store.FileExists()
	switch {
	case exists && !cfg.Mode.Has(config.ModeOverwrite):
		slog.Debug("tracking file exists, deserializing", "file", store.Path())
		if err := store.Deserialize(); err != nil {
			return err
		}
	case !exists && !cfg.Mode.Has(config.ModeInit):
		return fmt.Errorf("%w: tracking file %s does not exist, run with --init to create it", syncstate.ErrInvalidPath, store.Path())
	}

	if cfg.Mode.Has(config.ModeInit) {
		if err := applyMappings(store, cfg); err != nil {
			return err
		}
	} else if !cfg.Mode.Has(config.ModeDump) {
		lister, err := newLister(ctx, cfg)
		if err != nil {
			return err
		}
		if err := syncBuckets(ctx, store, lister); err != nil {
			return err
		}
	}

	if cfg.Mode.Has(config.ModeDump) {
		if cfg.JSON {
			return dumpJSON(out, store)
		}
		return dump(out, store)
	}
	if cfg.Mode.Has(config.ModeDryRun) {
		slog.Info("dry run, tracking file not written", "file", store.Path())
		return nil
	}

	if err := store.Serialize(); err != nil {
		return err
	}
	slog.Info("tracking file saved", "file", store.Path(), "buckets", len(store.Buckets()))
	return nil
}

// applyMappings removes before it adds so a single invocation can move a directory.
func applyMappings(store *tracking.Store, cfg config.Config) error {
	for _, m := range cfg.RemoveMaps {
		removed, err := store.RemoveDirMap(m.LocalPath, m.S3URI)
		if err != nil {
			return err
		}
		slog.Info("directory map removed", "local", m.LocalPath, "dest", m.S3URI, "count", removed)
	}
	for _, m := range cfg.AddMaps {
		if _, err := store.MapDirectory(m.LocalPath, m.S3URI); err != nil {
			return err
		}
		slog.Info("directory map added", "local", m.LocalPath, "dest", m.S3URI)
	}
	return nil
}

// syncBuckets refreshes the tracked remote objects and reports how the local directories
// compare against them.
func syncBuckets(ctx context.Context, store *tracking.Store, lister remote.ObjectLister) error {
	if err := remote.Refresh(ctx, lister, store.Buckets()); err != nil {
		return err
	}

	for _, bucket := range store.Buckets() {
		for _, dirmap := range bucket.DirectoryMaps {
			local, err := scan.Scan(dirmap)
			if err != nil {
				slog.Warn("skipping directory scan", "local", dirmap.LocalPath, "error", err)
				continue
			}

			keyPrefix := dirmap.S3Prefix + "/"
			var tracked []*syncstate.FileObject
			for _, obj := range bucket.FileObjects {
				if strings.HasPrefix(obj.Key, keyPrefix) {
					tracked = append(tracked, obj)
				}
			}

			inSync := 0
			for key, res := range scan.Compare(local, tracked) {
				if res == 0 {
					inSync++
					continue
				}
				slog.Debug("compare", "bucket", bucket.BucketName, "key", key, "result", res)
			}
			slog.Info("directory scanned", "local", dirmap.LocalPath, "dest", syncstate.S3URI(bucket.BucketName, dirmap.S3Prefix),
				"local_files", len(local), "remote_objects", len(tracked), "in_sync", inSync)
		}
	}
	return nil
}
