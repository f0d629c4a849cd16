package scan

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/s3bsync/s3bsync/internal/syncstate"
)

// CompareResult is a bit set describing how a local file and its remote object differ.
// Zero means they agree on modification time and size.
type CompareResult uint8

const (
	LocalNotFound CompareResult = 1 << iota
	S3ObjNotFound
	LocalOlder
	LocalLarger
	S3ObjOlder
	S3ObjLarger
)

func (r CompareResult) Has(flag CompareResult) bool {
	return r&flag != 0
}

func (r CompareResult) String() string {
	if r == 0 {
		return "IN_SYNC"
	}
	var names []string
	for _, f := range []struct {
		flag CompareResult
		name string
	}{
		{LocalNotFound, "LOCAL_NOT_FOUND"},
		{S3ObjNotFound, "S3OBJ_NOT_FOUND"},
		{LocalOlder, "LOCAL_OLDER"},
		{LocalLarger, "LOCAL_LARGER"},
		{S3ObjOlder, "S3OBJ_OLDER"},
		{S3ObjLarger, "S3OBJ_LARGER"},
	} {
		if r.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// Compare matches local files and remote objects by key and reports the difference for
// every key seen on either side.
func Compare(local []*LocalFile, remote []*syncstate.FileObject) map[string]CompareResult {
	localByKey := make(map[string]*LocalFile, len(local))
	localKeys := mapset.NewThreadUnsafeSet[string]()
	for _, f := range local {
		localByKey[f.Key] = f
		localKeys.Add(f.Key)
	}
	remoteByKey := make(map[string]*syncstate.FileObject, len(remote))
	remoteKeys := mapset.NewThreadUnsafeSet[string]()
	for _, o := range remote {
		remoteByKey[o.Key] = o
		remoteKeys.Add(o.Key)
	}

	results := make(map[string]CompareResult, localKeys.Union(remoteKeys).Cardinality())
	for key := range remoteKeys.Difference(localKeys).Iter() {
		results[key] = LocalNotFound
	}
	for key := range localKeys.Difference(remoteKeys).Iter() {
		results[key] = S3ObjNotFound
	}
	for key := range localKeys.Intersect(remoteKeys).Iter() {
		l, r := localByKey[key], remoteByKey[key]
		var res CompareResult
		switch {
		case l.Modified < r.Modified:
			res |= LocalOlder
		case l.Modified > r.Modified:
			res |= S3ObjOlder
		}
		switch {
		case l.Size > r.Size:
			res |= LocalLarger
		case l.Size < r.Size:
			res |= S3ObjLarger
		}
		results[key] = res
	}
	return results
}
