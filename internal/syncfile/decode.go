package syncfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/s3bsync/s3bsync/internal/syncstate"
)

// File is the decoded content of a sync file.
type File struct {
	Version        uint8
	LastSyncedTime int64 // epoch milliseconds
	Buckets        []*syncstate.ManagedBucket
}

type decoder struct {
	r   *bufio.Reader
	off int64
}

// Decode parses a complete sync file. The first structural violation aborts the decode;
// no partially read buckets are returned with an error.
func Decode(r io.Reader) (*File, error) {
	d := &decoder{r: bufio.NewReader(r)}

	var sig [4]byte
	if err := d.readFull(sig[:]); err != nil {
		return nil, err
	}
	if sig != Signature {
		return nil, fmt.Errorf("%w: signature % X does not match % X", syncstate.ErrCorruptFile, sig, Signature)
	}

	version, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if version < 1 || version > CurrentVersion {
		return nil, fmt.Errorf("%w: version %d outside supported range 1..%d", syncstate.ErrCorruptFile, version, CurrentVersion)
	}

	if err := d.expect(MetadataBegin); err != nil {
		return nil, err
	}
	lastSynced, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	if err := d.expect(MetadataEnd); err != nil {
		return nil, err
	}

	file := &File{
		Version:        version,
		LastSyncedTime: int64(lastSynced),
	}
	seen := make(map[string]struct{})

	for {
		b, err := d.r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read marker: %w", syncstate.ErrIOFailure, err)
		}
		d.off++
		if Marker(b) != BucketBegin {
			return nil, d.corrupt("unexpected marker %s at top level", Marker(b))
		}

		bucket, err := d.readBucket()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[bucket.BucketName]; dup {
			return nil, d.corrupt("bucket %q appears twice", bucket.BucketName)
		}
		seen[bucket.BucketName] = struct{}{}
		file.Buckets = append(file.Buckets, bucket)
	}

	slog.Debug("syncfile decoded", "version", file.Version, "lastSynced", file.LastSyncedTime, "buckets", len(file.Buckets))
	return file, nil
}

func (d *decoder) readBucket() (*syncstate.ManagedBucket, error) {
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	bucket := syncstate.NewManagedBucket(name)

	for {
		m, err := d.readByte()
		if err != nil {
			return nil, err
		}
		switch Marker(m) {
		case DirectoryBegin:
			dirmap, err := d.readDirectoryMap()
			if err != nil {
				return nil, err
			}
			if bucket.FindDirectoryMap(dirmap.LocalPath, dirmap.S3Prefix) >= 0 {
				return nil, d.corrupt("directory map %s -> %s repeated in bucket %q", dirmap.LocalPath, dirmap.S3Prefix, name)
			}
			bucket.DirectoryMaps = append(bucket.DirectoryMaps, dirmap)
		case ObjectBegin:
			obj, err := d.readFileObject()
			if err != nil {
				return nil, err
			}
			bucket.FileObjects = append(bucket.FileObjects, obj)
		case BucketEnd:
			return bucket, nil
		default:
			return nil, d.corrupt("unexpected marker %s in bucket %q", Marker(m), name)
		}
	}
}

func (d *decoder) readDirectoryMap() (*syncstate.DirectoryMap, error) {
	var err error
	dirmap := &syncstate.DirectoryMap{}

	if dirmap.LocalPath, err = d.readString(); err != nil {
		return nil, err
	}
	if dirmap.S3Prefix, err = d.readString(); err != nil {
		return nil, err
	}
	if dirmap.GzCompress, err = d.readByte(); err != nil {
		return nil, err
	}
	if dirmap.Recursive, err = d.readBool(); err != nil {
		return nil, err
	}
	if dirmap.GPGEnabled, err = d.readBool(); err != nil {
		return nil, err
	}
	if dirmap.GPGEnabled {
		if dirmap.GPGEmail, err = d.readString(); err != nil {
			return nil, err
		}
	}
	if err := d.expect(DirectoryEnd); err != nil {
		return nil, err
	}
	return dirmap, nil
}

func (d *decoder) readFileObject() (*syncstate.FileObject, error) {
	var err error
	obj := &syncstate.FileObject{}

	if obj.Key, err = d.readString(); err != nil {
		return nil, err
	}
	modified, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	obj.Modified = int64(modified)

	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	switch Marker(tag) {
	case ETagMD5:
		var digest [md5Size]byte
		if err := d.readFull(digest[:]); err != nil {
			return nil, err
		}
		obj.ETag = hex.EncodeToString(digest[:])
	case ETagOther:
		if obj.ETag, err = d.readString(); err != nil {
			return nil, err
		}
	default:
		return nil, d.corrupt("unexpected etag tag %s for key %q", Marker(tag), obj.Key)
	}

	size, err := d.readUint64()
	if err != nil {
		return nil, err
	}
	obj.Size = int64(size)

	if err := d.expect(ObjectEnd); err != nil {
		return nil, err
	}
	return obj, nil
}

func (d *decoder) corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s (offset %d)", syncstate.ErrCorruptFile, fmt.Sprintf(format, args...), d.off)
}

// readErr classifies a read failure. Running out of bytes inside a structure is corruption,
// anything else came from the underlying reader.
func (d *decoder) readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return d.corrupt("unexpected end of file")
	}
	return fmt.Errorf("%w: read at offset %d: %w", syncstate.ErrIOFailure, d.off, err)
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, d.readErr(err)
	}
	d.off++
	return b, nil
}

func (d *decoder) readFull(buf []byte) error {
	n, err := io.ReadFull(d.r, buf)
	d.off += int64(n)
	if err != nil {
		return d.readErr(err)
	}
	return nil
}

func (d *decoder) readUint64() (uint64, error) {
	var buf [8]byte
	if err := d.readFull(buf[:]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(buf[:])
	if v > maxInt64 {
		return 0, d.corrupt("integer %d overflows int64", v)
	}
	return v, nil
}

func (d *decoder) readBool() (bool, error) {
	b, err := d.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, d.corrupt("boolean byte %d is not 0 or 1", b)
	}
}

func (d *decoder) readString() (string, error) {
	raw, err := d.r.ReadBytes(0)
	d.off += int64(len(raw))
	if err != nil {
		return "", d.readErr(err)
	}
	raw = bytes.TrimSuffix(raw, []byte{0})
	if !utf8.Valid(raw) {
		return "", d.corrupt("string is not valid UTF-8")
	}
	return string(raw), nil
}

func (d *decoder) expect(m Marker) error {
	b, err := d.readByte()
	if err != nil {
		return err
	}
	if Marker(b) != m {
		return d.corrupt("expected %s, found %s", m, Marker(b))
	}
	return nil
}
