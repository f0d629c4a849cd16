package syncfile

import (
	"bytes"
	"io"
)

// HasSignature reports whether r starts with the sync file signature. It only reads
// the first four bytes.
func HasSignature(r io.Reader) bool {
	var head [len(Signature)]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return false
	}
	return bytes.Equal(head[:], Signature[:])
}
