package tracking

import (
	"os"
	"time"
)

// Summary is what a dump of the tracking state reports.
type Summary struct {
	Path           string
	FileVersion    uint8
	LastSyncedTime time.Time
	Buckets        int
	DirectoryMaps  int
	FileObjects    int
	FileSize       int64 // -1 when the file does not exist
}

func (s *Store) Summary() *Summary {
	sum := &Summary{
		Path:        s.path,
		FileVersion: s.fileVersion,
		Buckets:     len(s.buckets),
		FileSize:    -1,
	}
	if s.lastSyncedTime > 0 {
		sum.LastSyncedTime = time.UnixMilli(s.lastSyncedTime)
	}
	for _, b := range s.buckets {
		sum.DirectoryMaps += len(b.DirectoryMaps)
		sum.FileObjects += len(b.FileObjects)
	}
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		sum.FileSize = info.Size()
	}
	return sum
}
