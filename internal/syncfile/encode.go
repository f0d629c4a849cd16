package syncfile

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/s3bsync/s3bsync/internal/syncstate"
)

const (
	md5Size  = 16
	maxInt64 = math.MaxInt64
)

type encoder struct {
	w *bufio.Writer
}

// Encode writes buckets in the current format version, stamping now as the last synced time.
// Buckets without a directory map are left out. Nothing is written when the model holds a
// value the format cannot represent.
func Encode(w io.Writer, buckets []*syncstate.ManagedBucket, now time.Time) error {
	kept, err := encodable(buckets)
	if err != nil {
		return err
	}

	e := &encoder{w: bufio.NewWriter(w)}
	e.w.Write(Signature[:])
	e.w.WriteByte(CurrentVersion)
	e.writeMarker(MetadataBegin)
	e.writeUint64(uint64(now.UnixMilli()))
	e.writeMarker(MetadataEnd)

	for _, bucket := range kept {
		e.writeMarker(BucketBegin)
		e.writeString(bucket.BucketName)
		for _, dirmap := range bucket.DirectoryMaps {
			e.writeDirectoryMap(dirmap)
		}
		for _, obj := range bucket.FileObjects {
			e.writeFileObject(obj)
		}
		e.writeMarker(BucketEnd)
	}

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("%w: write sync file: %w", syncstate.ErrIOFailure, err)
	}

	slog.Debug("syncfile encoded", "buckets", len(kept), "skipped", len(buckets)-len(kept))
	return nil
}

func (e *encoder) writeDirectoryMap(d *syncstate.DirectoryMap) {
	e.writeMarker(DirectoryBegin)
	e.writeString(d.LocalPath)
	e.writeString(d.S3Prefix)
	e.w.WriteByte(d.GzCompress)
	e.writeBool(d.Recursive)
	e.writeBool(d.GPGEnabled)
	if d.GPGEnabled {
		e.writeString(d.GPGEmail)
	}
	e.writeMarker(DirectoryEnd)
}

func (e *encoder) writeFileObject(obj *syncstate.FileObject) {
	e.writeMarker(ObjectBegin)
	e.writeString(obj.Key)
	e.writeUint64(uint64(obj.Modified))
	if digest, ok := md5Digest(obj.ETag); ok {
		e.writeMarker(ETagMD5)
		e.w.Write(digest)
	} else {
		e.writeMarker(ETagOther)
		e.writeString(obj.ETag)
	}
	e.writeUint64(uint64(obj.Size))
	e.writeMarker(ObjectEnd)
}

func (e *encoder) writeMarker(m Marker) {
	e.w.WriteByte(byte(m))
}

func (e *encoder) writeString(s string) {
	e.w.WriteString(s)
	e.w.WriteByte(0)
}

func (e *encoder) writeUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	e.w.Write(buf[:])
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.w.WriteByte(1)
	} else {
		e.w.WriteByte(0)
	}
}

// md5Digest returns the raw digest for a lowercase 32 character hex etag. Other spellings
// go through the string tag so they decode byte-identical.
func md5Digest(etag string) ([]byte, bool) {
	if len(etag) != 2*md5Size {
		return nil, false
	}
	for i := 0; i < len(etag); i++ {
		c := etag[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return nil, false
		}
	}
	digest, err := hex.DecodeString(etag)
	if err != nil {
		return nil, false
	}
	return digest, true
}

// encodable returns the buckets that will be written, after checking that every one of
// them survives a decode unchanged.
func encodable(buckets []*syncstate.ManagedBucket) ([]*syncstate.ManagedBucket, error) {
	kept := make([]*syncstate.ManagedBucket, 0, len(buckets))
	names := make(map[string]struct{}, len(buckets))

	for _, bucket := range buckets {
		if len(bucket.DirectoryMaps) == 0 {
			continue
		}
		if _, dup := names[bucket.BucketName]; dup {
			return nil, fmt.Errorf("%w: bucket %q listed twice", syncstate.ErrUnencodable, bucket.BucketName)
		}
		names[bucket.BucketName] = struct{}{}

		if err := checkString("bucket name", bucket.BucketName); err != nil {
			return nil, err
		}
		for i, d := range bucket.DirectoryMaps {
			if bucket.FindDirectoryMap(d.LocalPath, d.S3Prefix) != i {
				return nil, fmt.Errorf("%w: directory map %s -> %s listed twice in bucket %q", syncstate.ErrUnencodable, d.LocalPath, d.S3Prefix, bucket.BucketName)
			}
			if err := checkString("local path", d.LocalPath); err != nil {
				return nil, err
			}
			if err := checkString("s3 prefix", d.S3Prefix); err != nil {
				return nil, err
			}
			if d.GPGEnabled {
				if err := checkString("gpg email", d.GPGEmail); err != nil {
					return nil, err
				}
			}
		}
		for _, obj := range bucket.FileObjects {
			if err := checkString("object key", obj.Key); err != nil {
				return nil, err
			}
			if err := checkString("etag", obj.ETag); err != nil {
				return nil, err
			}
			if obj.Modified < 0 || obj.Size < 0 {
				return nil, fmt.Errorf("%w: object %q has negative modified time or size", syncstate.ErrUnencodable, obj.Key)
			}
		}
		kept = append(kept, bucket)
	}
	return kept, nil
}

func checkString(field, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return fmt.Errorf("%w: %s %q contains a NUL byte", syncstate.ErrUnencodable, field, s)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %s %q is not valid UTF-8", syncstate.ErrUnencodable, field, s)
	}
	return nil
}
