// Package scan walks the local side of directory maps and compares it with the remote
// objects recorded in the tracking state.
package scan

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/s3bsync/s3bsync/internal/syncstate"
)

// LocalFile is a regular file found below a directory map's local path.
type LocalFile struct {
	Key      string // object key the file maps to
	Path     string
	Modified int64 // epoch milliseconds
	Size     int64
}

// Scan lists the files of a directory map. Only the top directory is read when the map is
// not recursive.
func Scan(dirmap *syncstate.DirectoryMap) ([]*LocalFile, error) {
	root := dirmap.LocalPath
	ignore := loadIgnore(root)

	var files []*LocalFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk error: %w", walkErr)
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if !dirmap.Recursive || ignore.MatchesPath(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.MatchesPath(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("failed to get file info", "path", path, "error", err)
			return nil
		}

		files = append(files, &LocalFile{
			Key:      dirmap.S3Prefix + "/" + relPath,
			Path:     path,
			Modified: info.ModTime().UnixMilli(),
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan of %s failed: %w", root, err)
	}

	return files, nil
}
