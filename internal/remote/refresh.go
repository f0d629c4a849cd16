package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/s3bsync/s3bsync/internal/syncstate"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentListings = 8

// Refresh lists every directory map prefix of every bucket and replaces each bucket's file
// objects with what was found. Listings run concurrently; buckets are only modified after
// all of them succeeded, so a failed refresh leaves the model untouched.
func Refresh(ctx context.Context, lister ObjectLister, buckets []*syncstate.ManagedBucket) error {
	type job struct {
		bucket int
		dirmap int
	}
	var jobs []job
	results := make([][][]*syncstate.FileObject, len(buckets))
	for i, b := range buckets {
		results[i] = make([][]*syncstate.FileObject, len(b.DirectoryMaps))
		for j := range b.DirectoryMaps {
			jobs = append(jobs, job{bucket: i, dirmap: j})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentListings)
	for _, jb := range jobs {
		bucket := buckets[jb.bucket]
		prefix := bucket.DirectoryMaps[jb.dirmap].S3Prefix
		g.Go(func() error {
			objects, err := lister.ListObjects(gctx, bucket.BucketName, prefix)
			if err != nil {
				if errors.Is(err, syncstate.ErrIOFailure) {
					return err
				}
				return fmt.Errorf("%w: list %s: %w", syncstate.ErrIOFailure, syncstate.S3URI(bucket.BucketName, prefix), err)
			}
			results[jb.bucket][jb.dirmap] = objects
			slog.Debug("remote listed", "bucket", bucket.BucketName, "prefix", prefix, "objects", len(objects))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, b := range buckets {
		if len(b.DirectoryMaps) == 0 {
			continue
		}
		// overlapping prefixes (a and a/b) list the same key twice
		seen := mapset.NewThreadUnsafeSet[string]()
		b.FileObjects = nil
		for _, objects := range results[i] {
			for _, obj := range objects {
				if !seen.Add(obj.Key) {
					continue
				}
				b.CreateFileObject(obj.Key, obj.Modified, obj.ETag, obj.Size)
			}
		}
		slog.Info("remote refreshed", "bucket", b.BucketName, "objects", len(b.FileObjects))
	}
	return nil
}
