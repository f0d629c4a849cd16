// Package tracking owns the sync file on disk and the managed buckets loaded from it.
package tracking

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/s3bsync/s3bsync/internal/syncfile"
	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/s3bsync/s3bsync/internal/utils"
)

// Store is the in-memory tracking state bound to one sync file path.
// It is not safe for concurrent use, and the file itself is not locked.
type Store struct {
	path           string
	fileVersion    uint8
	lastSyncedTime int64
	buckets        []*syncstate.ManagedBucket
	now            func() time.Time
}

func New(path string) *Store {
	return &Store{
		path: path,
		now:  time.Now,
	}
}

func (s *Store) Path() string {
	return s.path
}

// FileVersion is the format version read by the last Deserialize, 0 if nothing was read.
func (s *Store) FileVersion() uint8 {
	return s.fileVersion
}

// LastSyncedTime is in epoch milliseconds.
func (s *Store) LastSyncedTime() int64 {
	return s.lastSyncedTime
}

// Buckets returns the managed buckets in order, including buckets that lost their last
// directory map since the last Serialize.
func (s *Store) Buckets() []*syncstate.ManagedBucket {
	return s.buckets
}

// Bucket returns the managed bucket with the given name, or nil.
func (s *Store) Bucket(name string) *syncstate.ManagedBucket {
	for _, b := range s.buckets {
		if b.BucketName == name {
			return b
		}
	}
	return nil
}

func (s *Store) FileExists() bool {
	return utils.FileExists(s.path)
}

// VerifyFile only checks the signature, not the rest of the file.
func (s *Store) VerifyFile() bool {
	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	return syncfile.HasSignature(f)
}

// Purge deletes the sync file. A missing file and a file without the sync file signature
// are both errors.
func (s *Store) Purge() error {
	if !s.FileExists() {
		return fmt.Errorf("%w: nothing to purge at %s", syncstate.ErrInvalidPath, s.path)
	}
	if !s.VerifyFile() {
		return fmt.Errorf("%w: refusing to delete %s, it is not a sync file", syncstate.ErrCorruptFile, s.path)
	}
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("%w: purge %s: %w", syncstate.ErrIOFailure, s.path, err)
	}
	slog.Debug("sync file purged", "path", s.path)
	return nil
}

// MapDirectory adds a directory map for localPath under the bucket and prefix named by s3URI,
// creating the bucket if needed. The model is unchanged when an error is returned.
func (s *Store) MapDirectory(localPath, s3URI string) (*syncstate.DirectoryMap, error) {
	if !filepath.IsAbs(localPath) {
		return nil, fmt.Errorf("%w: %q is not an absolute path", syncstate.ErrInvalidPath, localPath)
	}
	if !utils.DirExists(localPath) {
		return nil, fmt.Errorf("%w: %q is not an existing directory", syncstate.ErrInvalidPath, localPath)
	}
	localPath = filepath.Clean(localPath)

	bucketName, prefix, err := syncstate.ParseS3URI(s3URI)
	if err != nil {
		return nil, err
	}

	bucket := s.Bucket(bucketName)
	if bucket != nil && bucket.FindDirectoryMap(localPath, prefix) >= 0 {
		return nil, fmt.Errorf("%w: %s -> %s", syncstate.ErrDuplicateMapping, localPath, s3URI)
	}
	if bucket == nil {
		bucket = syncstate.NewManagedBucket(bucketName)
		s.buckets = append(s.buckets, bucket)
		slog.Debug("tracking new bucket", "bucket", bucketName)
	}

	dirmap := bucket.CreateDirectoryMap(localPath, prefix)
	slog.Debug("directory mapped", "local", localPath, "bucket", bucketName, "prefix", prefix)
	return dirmap, nil
}

// RemoveDirMap removes every directory map in the bucket named by s3URI that has exactly
// this local path and prefix, and returns how many were removed. The bucket stays in
// memory even when it has no maps left; it is dropped on the next Serialize.
func (s *Store) RemoveDirMap(localPath, s3URI string) (int, error) {
	bucketName, prefix, err := syncstate.ParseS3URI(s3URI)
	if err != nil {
		return 0, err
	}

	bucket := s.Bucket(bucketName)
	if bucket == nil {
		return 0, fmt.Errorf("%w: %s", syncstate.ErrUnknownBucket, bucketName)
	}

	localPath = filepath.Clean(localPath)
	before := len(bucket.DirectoryMaps)
	bucket.DirectoryMaps = slices.DeleteFunc(bucket.DirectoryMaps, func(d *syncstate.DirectoryMap) bool {
		return d.Matches(localPath, prefix)
	})
	removed := before - len(bucket.DirectoryMaps)
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s -> %s", syncstate.ErrNotFound, localPath, s3URI)
	}

	slog.Debug("directory unmapped", "local", localPath, "bucket", bucketName, "prefix", prefix, "removed", removed, "remaining", len(bucket.DirectoryMaps))
	return removed, nil
}

// Serialize rewrites the sync file in place with the current buckets. The rewrite is not
// atomic: a crash mid-write leaves a truncated file behind.
func (s *Store) Serialize() error {
	now := s.now()

	var buf bytes.Buffer
	if err := syncfile.Encode(&buf, s.buckets, now); err != nil {
		return err
	}

	if err := utils.EnsureParent(s.path); err != nil {
		return fmt.Errorf("%w: create parent of %s: %w", syncstate.ErrIOFailure, s.path, err)
	}
	if err := writeInPlace(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", syncstate.ErrIOFailure, err)
	}

	s.lastSyncedTime = now.UnixMilli()
	slog.Debug("sync file written", "path", s.path, "bytes", buf.Len(), "lastSynced", s.lastSyncedTime)
	return nil
}

// writeInPlace opens path for writing, writes data over the old contents and truncates the
// rest.
func writeInPlace(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("truncate %s: %w", path, err)
	}
	return f.Close()
}

// Deserialize replaces the in-memory state with the content of the sync file. On error the
// in-memory state is left as it was.
func (s *Store) Deserialize() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", syncstate.ErrIOFailure, s.path, err)
	}
	defer f.Close()

	file, err := syncfile.Decode(f)
	if err != nil {
		slog.Debug("sync file decode failed", "path", s.path, "error", err)
		return fmt.Errorf("%s: %w", s.path, err)
	}

	s.fileVersion = file.Version
	s.lastSyncedTime = file.LastSyncedTime
	s.buckets = file.Buckets
	return nil
}
