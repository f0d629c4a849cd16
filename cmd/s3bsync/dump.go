package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/s3bsync/s3bsync/internal/tracking"
)

func dump(w io.Writer, store *tracking.Store) error {
	sum := store.Summary()

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Tracking file   "), green.Render(sum.Path))
	if sum.FileSize >= 0 {
		fmt.Fprintf(&b, "%s%s\n", gray.Render("File size       "), cyan.Render(humanize.Bytes(uint64(sum.FileSize))))
	} else {
		fmt.Fprintf(&b, "%s%s\n", gray.Render("File size       "), cyan.Render("not written yet"))
	}
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Format version  "), cyan.Render(fmt.Sprint(sum.FileVersion)))
	if sum.LastSyncedTime.IsZero() {
		fmt.Fprintf(&b, "%s%s\n", gray.Render("Last synced     "), cyan.Render("never"))
	} else {
		fmt.Fprintf(&b, "%s%s (%s)\n", gray.Render("Last synced     "),
			cyan.Render(sum.LastSyncedTime.Format("2006-01-02 15:04:05")), humanize.Time(sum.LastSyncedTime))
	}
	fmt.Fprintf(&b, "%s%d buckets, %d directory maps, %d file objects\n",
		gray.Render("Tracking        "), sum.Buckets, sum.DirectoryMaps, sum.FileObjects)

	for _, bucket := range store.Buckets() {
		fmt.Fprintf(&b, "\n%s %s\n", bold.Render(bucket.BucketName), gray.Render(fmt.Sprintf("(%d objects)", len(bucket.FileObjects))))
		if len(bucket.DirectoryMaps) == 0 {
			fmt.Fprintf(&b, "  %s\n", gray.Render("no directory maps, dropped on next write"))
		}
		for _, d := range bucket.DirectoryMaps {
			fmt.Fprintf(&b, "  %s -> %s %s\n", d.LocalPath, cyan.Render(syncstate.S3URI(bucket.BucketName, d.S3Prefix)), gray.Render(dirmapFlags(d)))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func dirmapFlags(d *syncstate.DirectoryMap) string {
	flags := []string{fmt.Sprintf("gz=%d", d.GzCompress)}
	if d.Recursive {
		flags = append(flags, "recursive")
	}
	if d.GPGEnabled {
		flags = append(flags, "gpg="+d.GPGEmail)
	}
	return "[" + strings.Join(flags, " ") + "]"
}

type dumpDoc struct {
	Path           string                     `json:"path"`
	FileVersion    uint8                      `json:"fileVersion"`
	FileSize       int64                      `json:"fileSize"`
	LastSyncedTime int64                      `json:"lastSyncedTime"`
	Buckets        []*syncstate.ManagedBucket `json:"buckets"`
}

func dumpJSON(w io.Writer, store *tracking.Store) error {
	sum := store.Summary()
	doc := dumpDoc{
		Path:           sum.Path,
		FileVersion:    sum.FileVersion,
		FileSize:       sum.FileSize,
		LastSyncedTime: store.LastSyncedTime(),
		Buckets:        store.Buckets(),
	}
	if doc.Buckets == nil {
		doc.Buckets = []*syncstate.ManagedBucket{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
