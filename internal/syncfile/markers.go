package syncfile

import "fmt"

// CurrentVersion is the newest format version this package reads and the only one it writes.
const CurrentVersion = 1

// Signature opens every sync file.
var Signature = [4]byte{0x9D, 0x9F, 0x53, 0x33}

// Marker is a reserved byte delimiting a structural block.
type Marker byte

const (
	BucketBegin    Marker = 0x90
	BucketEnd      Marker = 0x91
	DirectoryBegin Marker = 0x92
	DirectoryEnd   Marker = 0x93
	ObjectBegin    Marker = 0x94
	ObjectEnd      Marker = 0x95
	ETagMD5        Marker = 0x96
	ETagOther      Marker = 0x97
	MetadataBegin  Marker = 0x9A
	MetadataEnd    Marker = 0x9B
)

// markers is the closed set of marker bytes. Values must be distinct.
var markers = []struct {
	name  string
	value Marker
}{
	{"BUCKET_BEGIN", BucketBegin},
	{"BUCKET_END", BucketEnd},
	{"DIRECTORY_BEGIN", DirectoryBegin},
	{"DIRECTORY_END", DirectoryEnd},
	{"OBJECT_BEGIN", ObjectBegin},
	{"OBJECT_END", ObjectEnd},
	{"ETAG_MD5", ETagMD5},
	{"ETAG_OTHER", ETagOther},
	{"METADATA_BEGIN", MetadataBegin},
	{"METADATA_END", MetadataEnd},
}

func (m Marker) String() string {
	for _, entry := range markers {
		if entry.value == m {
			return entry.name
		}
	}
	return fmt.Sprintf("0x%02X", byte(m))
}
