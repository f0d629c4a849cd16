package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/s3bsync/s3bsync/internal/config"
	"github.com/s3bsync/s3bsync/internal/remote"
	"github.com/s3bsync/s3bsync/internal/syncfile"
	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/s3bsync/s3bsync/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	objects map[string][]*syncstate.FileObject
	err     error
}

func (s *stubLister) ListObjects(_ context.Context, bucket, prefix string) ([]*syncstate.FileObject, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.objects[bucket+"/"+prefix], nil
}

func listerOf(l remote.ObjectLister) listerFactory {
	return func(context.Context, config.Config) (remote.ObjectLister, error) {
		return l, nil
	}
}

func noLister(t *testing.T) listerFactory {
	return func(context.Context, config.Config) (remote.ObjectLister, error) {
		t.Fatal("lister should not be created")
		return nil, nil
	}
}

func runWith(t *testing.T, cfg config.Config, newLister listerFactory) (string, error) {
	t.Helper()
	require.NoError(t, cfg.Validate())
	var out bytes.Buffer
	err := run(context.Background(), cfg, &out, newLister)
	return out.String(), err
}

func load(t *testing.T, path string) *tracking.Store {
	t.Helper()
	s := tracking.New(path)
	require.NoError(t, s.Deserialize())
	return s
}

func TestRun_InitCreatesTrackingFile(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	s := load(t, file)
	require.Len(t, s.Buckets(), 1)
	bucket := s.Buckets()[0]
	assert.Equal(t, "joshstockin", bucket.BucketName)
	require.Len(t, bucket.DirectoryMaps, 1)
	assert.Equal(t, docs, bucket.DirectoryMaps[0].LocalPath)
	assert.Equal(t, "Documents", bucket.DirectoryMaps[0].S3Prefix)
	assert.True(t, bucket.DirectoryMaps[0].Recursive)
}

func TestRun_InitWithSpaceInDirectoryName(t *testing.T) {
	docs := filepath.Join(t.TempDir(), "My Documents")
	require.NoError(t, os.Mkdir(docs, 0o755))
	// a sibling without the space must never be picked instead
	require.NoError(t, os.Mkdir(filepath.Join(filepath.Dir(docs), "MyDocuments"), 0o755))
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	s := load(t, file)
	require.Len(t, s.Buckets(), 1)
	require.Len(t, s.Buckets()[0].DirectoryMaps, 1)
	assert.Equal(t, docs, s.Buckets()[0].DirectoryMaps[0].LocalPath)

	_, err = runWith(t, config.Config{
		Mode:       config.ModeInit,
		SyncFile:   file,
		RemoveMaps: []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)
	assert.Empty(t, load(t, file).Buckets())
}

func TestRun_InitAppendsAndRemoves(t *testing.T) {
	docs := t.TempDir()
	pics := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	// move Documents to another prefix and add Pictures in one invocation
	_, err = runWith(t, config.Config{
		Mode:       config.ModeInit,
		SyncFile:   file,
		RemoveMaps: []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
		AddMaps: []config.DirMapping{
			{LocalPath: docs, S3URI: "s3://joshstockin/Docs"},
			{LocalPath: pics, S3URI: "s3://pictures-bucket/Pictures"},
		},
	}, noLister(t))
	require.NoError(t, err)

	s := load(t, file)
	require.Len(t, s.Buckets(), 2)
	require.Len(t, s.Bucket("joshstockin").DirectoryMaps, 1)
	assert.Equal(t, "Docs", s.Bucket("joshstockin").DirectoryMaps[0].S3Prefix)
	require.NotNil(t, s.Bucket("pictures-bucket"))
}

func TestRun_OverwriteDiscardsExistingMaps(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	_, err = runWith(t, config.Config{
		Mode:     config.ModeInit | config.ModeOverwrite,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://other-bucket/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	s := load(t, file)
	require.Len(t, s.Buckets(), 1)
	assert.Equal(t, "other-bucket", s.Buckets()[0].BucketName)
}

func TestRun_MissingFileOutsideInit(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{SyncFile: file}, noLister(t))
	require.ErrorIs(t, err, syncstate.ErrInvalidPath)
	assert.Contains(t, err.Error(), "--init")
	assert.NoFileExists(t, file)
}

func TestRun_DuplicateMappingLeavesFileUntouched(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")
	mapping := []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}}

	_, err := runWith(t, config.Config{Mode: config.ModeInit, SyncFile: file, AddMaps: mapping}, noLister(t))
	require.NoError(t, err)
	before, err := os.ReadFile(file)
	require.NoError(t, err)

	_, err = runWith(t, config.Config{Mode: config.ModeInit, SyncFile: file, AddMaps: mapping}, noLister(t))
	require.ErrorIs(t, err, syncstate.ErrDuplicateMapping)

	after, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_Purge(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	_, err = runWith(t, config.Config{Mode: config.ModeInit | config.ModePurge, SyncFile: file}, noLister(t))
	require.NoError(t, err)
	assert.NoFileExists(t, file)

	_, err = runWith(t, config.Config{Mode: config.ModeInit | config.ModePurge, SyncFile: file}, noLister(t))
	require.ErrorIs(t, err, syncstate.ErrInvalidPath)
}

func TestRun_PurgeIgnoredOutsideInit(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	_, err = runWith(t, config.Config{Mode: config.ModePurge, SyncFile: file}, listerOf(&stubLister{}))
	require.NoError(t, err)
	assert.FileExists(t, file)
}

func TestRun_DryRunDoesNotWrite(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit | config.ModeDryRun,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)
	assert.NoFileExists(t, file)
}

func TestRun_SyncRefreshesFileObjects(t *testing.T) {
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.txt"), []byte("abc"), 0o644))
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	lister := &stubLister{objects: map[string][]*syncstate.FileObject{
		"joshstockin/Documents": {
			{Key: "Documents/a.txt", Modified: 1650000000123, ETag: "900150983cd24fb0d6963f7d28e17f72", Size: 3},
		},
	}}
	_, err = runWith(t, config.Config{SyncFile: file}, listerOf(lister))
	require.NoError(t, err)

	s := load(t, file)
	require.Len(t, s.Buckets(), 1)
	require.Len(t, s.Buckets()[0].FileObjects, 1)
	assert.Equal(t, "Documents/a.txt", s.Buckets()[0].FileObjects[0].Key)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", s.Buckets()[0].FileObjects[0].ETag)
	assert.NotZero(t, s.LastSyncedTime())
}

func TestRun_SyncListingFailureKeepsFile(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)
	before, err := os.ReadFile(file)
	require.NoError(t, err)

	listErr := errors.New("access denied")
	_, err = runWith(t, config.Config{SyncFile: file}, listerOf(&stubLister{err: listErr}))
	require.ErrorIs(t, err, listErr)
	require.ErrorIs(t, err, syncstate.ErrIOFailure)

	after, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_CorruptFileIsReported(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".state.s3sync")
	require.NoError(t, os.WriteFile(file, []byte("not a sync file"), 0o644))

	_, err := runWith(t, config.Config{SyncFile: file}, noLister(t))
	require.ErrorIs(t, err, syncstate.ErrCorruptFile)
}

func TestRun_DumpPrintsWithoutWriting(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)
	before, err := os.ReadFile(file)
	require.NoError(t, err)

	out, err := runWith(t, config.Config{Mode: config.ModeDump, SyncFile: file}, noLister(t))
	require.NoError(t, err)
	assert.Contains(t, out, file)
	assert.Contains(t, out, "joshstockin")
	assert.Contains(t, out, "s3://joshstockin/Documents")
	assert.Contains(t, out, docs)
	assert.Contains(t, out, "1 buckets, 1 directory maps, 0 file objects")

	after, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRun_InitDumpShowsPendingMaps(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	out, err := runWith(t, config.Config{
		Mode:     config.ModeInit | config.ModeDump,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)
	assert.Contains(t, out, "s3://joshstockin/Documents")
	assert.Contains(t, out, "not written yet")
	assert.Contains(t, out, "never")
	assert.NoFileExists(t, file)
}

func TestRun_WrittenFileHasSignature(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	assert.True(t, syncfile.HasSignature(f))
}

func TestRun_DumpJSON(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	_, err := runWith(t, config.Config{
		Mode:     config.ModeInit,
		SyncFile: file,
		AddMaps:  []config.DirMapping{{LocalPath: docs, S3URI: "s3://joshstockin/Documents"}},
	}, noLister(t))
	require.NoError(t, err)

	out, err := runWith(t, config.Config{Mode: config.ModeDump, JSON: true, SyncFile: file}, noLister(t))
	require.NoError(t, err)

	var doc dumpDoc
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&doc))
	assert.Equal(t, file, doc.Path)
	assert.Equal(t, uint8(syncfile.CurrentVersion), doc.FileVersion)
	assert.Positive(t, doc.FileSize)
	require.Len(t, doc.Buckets, 1)
	assert.Equal(t, "joshstockin", doc.Buckets[0].BucketName)
	require.Len(t, doc.Buckets[0].DirectoryMaps, 1)
	assert.Equal(t, docs, doc.Buckets[0].DirectoryMaps[0].LocalPath)
}

func TestRootCommand_InitThenDump(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	execute := func(args ...string) string {
		t.Helper()
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return out.String()
	}

	execute("--init", "--file", file, "--dir", docs+"=s3://joshstockin/Documents")
	require.FileExists(t, file)

	out := execute("--dump", "--file", file)
	assert.Contains(t, out, "s3://joshstockin/Documents")
	assert.Contains(t, out, docs)
}

func TestRootCommand_DirFlagsIgnoredOutsideInit(t *testing.T) {
	docs := t.TempDir()
	file := filepath.Join(t.TempDir(), ".state.s3sync")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--init", "--file", file, "--dir", docs + "=s3://joshstockin/Documents"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	// a malformed --dir must not stop a dump outside init mode
	cmd = newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dump", "--file", file, "--dir", "/tmp/no-destination"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "s3://joshstockin/Documents")
}

func TestRootCommand_BadDirFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--init", "--file", filepath.Join(t.TempDir(), "state"), "--dir", "/tmp/no-destination"})

	err := cmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, syncstate.ErrInvalidDestination)
}
