package syncstate

import "errors"

// Every failure returned by the codec or the tracking store wraps exactly one of these.
// None of them is recoverable; the operation that produced it has been aborted in full.
var (
	ErrCorruptFile        = errors.New("corrupt sync file")
	ErrInvalidPath        = errors.New("invalid path")
	ErrInvalidDestination = errors.New("invalid s3 destination")
	ErrDuplicateMapping   = errors.New("directory map already exists")
	ErrUnknownBucket      = errors.New("bucket is not tracked")
	ErrNotFound           = errors.New("directory map not found")
	ErrIOFailure          = errors.New("i/o failure")
	ErrUnencodable        = errors.New("value cannot be encoded")
)
