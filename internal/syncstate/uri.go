package syncstate

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var s3URIPattern = regexp.MustCompile(`^s3://([a-z0-9][a-z0-9-]{1,61}[a-z0-9])/(.*)$`)

// ParseS3URI splits s3://bucket/prefix. The prefix must be non-empty and must not end with
// a path separator.
func ParseS3URI(uri string) (bucket string, prefix string, err error) {
	m := s3URIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q is not of the form s3://bucket-name/prefix", ErrInvalidDestination, uri)
	}
	bucket, prefix = m[1], m[2]
	if prefix == "" {
		return "", "", fmt.Errorf("%w: %q has an empty key prefix", ErrInvalidDestination, uri)
	}
	if strings.HasSuffix(prefix, "/") || strings.HasSuffix(prefix, string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%w: key prefix %q must not end with a path separator", ErrInvalidDestination, prefix)
	}
	return bucket, prefix, nil
}

// S3URI is the inverse of ParseS3URI.
func S3URI(bucket, prefix string) string {
	return "s3://" + bucket + "/" + prefix
}
