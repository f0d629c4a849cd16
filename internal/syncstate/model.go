// Package syncstate holds the records persisted in a sync file: managed buckets,
// the directory maps that point local directories at them, and the remote objects
// already accounted for.
package syncstate

// FileObject is a remote object seen during a previous sync.
type FileObject struct {
	Key      string `json:"key"`
	Modified int64  `json:"modified"` // epoch milliseconds
	ETag     string `json:"etag"`
	Size     int64  `json:"size"`
}

// DirectoryMap links a local directory to a key prefix inside a bucket.
type DirectoryMap struct {
	LocalPath  string `json:"localPath"`
	S3Prefix   string `json:"s3Prefix"`
	GzCompress uint8  `json:"gzCompress"`
	Recursive  bool   `json:"recursive"`
	GPGEnabled bool   `json:"gpgEnabled"`
	GPGEmail   string `json:"gpgEmail,omitempty"` // only meaningful when GPGEnabled
}

// Matches reports whether the map has the given identity.
func (d *DirectoryMap) Matches(localPath, s3Prefix string) bool {
	return d.LocalPath == localPath && d.S3Prefix == s3Prefix
}

type ManagedBucket struct {
	BucketName    string          `json:"bucketName"`
	DirectoryMaps []*DirectoryMap `json:"directoryMaps"`
	FileObjects   []*FileObject   `json:"fileObjects"`
}

func NewManagedBucket(name string) *ManagedBucket {
	return &ManagedBucket{BucketName: name}
}

// DirMapOption overrides one of the defaults applied by CreateDirectoryMap.
type DirMapOption func(*DirectoryMap)

func WithGzCompress(level uint8) DirMapOption {
	return func(d *DirectoryMap) { d.GzCompress = level }
}

func WithRecursive(recursive bool) DirMapOption {
	return func(d *DirectoryMap) { d.Recursive = recursive }
}

func WithGPG(email string) DirMapOption {
	return func(d *DirectoryMap) {
		d.GPGEnabled = true
		d.GPGEmail = email
	}
}

// CreateDirectoryMap appends a directory map with compression off, recursion on and
// GPG off unless opts say otherwise. Nothing is validated here.
func (b *ManagedBucket) CreateDirectoryMap(localPath, s3Prefix string, opts ...DirMapOption) *DirectoryMap {
	dirmap := &DirectoryMap{
		LocalPath: localPath,
		S3Prefix:  s3Prefix,
		Recursive: true,
	}
	for _, opt := range opts {
		opt(dirmap)
	}
	b.DirectoryMaps = append(b.DirectoryMaps, dirmap)
	return dirmap
}

// CreateFileObject appends a file object. Nothing is validated here.
func (b *ManagedBucket) CreateFileObject(key string, modified int64, etag string, size int64) *FileObject {
	obj := &FileObject{
		Key:      key,
		Modified: modified,
		ETag:     etag,
		Size:     size,
	}
	b.FileObjects = append(b.FileObjects, obj)
	return obj
}

// FindDirectoryMap returns the index of the map with the given identity, or -1.
func (b *ManagedBucket) FindDirectoryMap(localPath, s3Prefix string) int {
	for i, d := range b.DirectoryMaps {
		if d.Matches(localPath, s3Prefix) {
			return i
		}
	}
	return -1
}
