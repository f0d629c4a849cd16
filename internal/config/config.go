package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/s3bsync/s3bsync/internal/syncstate"
	"github.com/s3bsync/s3bsync/internal/utils"
)

var DefaultSyncFile = "~/.state.s3sync"

// Mode is the set of behaviours requested on the command line. Sync is implied when
// ModeInit is absent.
type Mode uint8

const (
	ModeInit Mode = 1 << iota
	ModeDump
	ModePurge
	ModeOverwrite
	ModeDryRun
)

func (m Mode) Has(flag Mode) bool {
	return m&flag != 0
}

func (m Mode) String() string {
	var names []string
	if m.Has(ModeInit) {
		names = append(names, "init")
	} else {
		names = append(names, "sync")
	}
	for _, f := range []struct {
		mode Mode
		name string
	}{
		{ModeDump, "dump"},
		{ModePurge, "purge"},
		{ModeOverwrite, "overwrite"},
		{ModeDryRun, "dryrun"},
	} {
		if m.Has(f.mode) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// DirMapping is one `PATH S3_DEST` pair from the command line.
type DirMapping struct {
	LocalPath string
	S3URI     string
}

func (d DirMapping) String() string {
	return d.LocalPath + " -> " + d.S3URI
}

// Config holds every recognised option. Build it, call Validate, then pass it by value.
type Config struct {
	Mode       Mode
	SyncFile   string
	AddMaps    []DirMapping
	RemoveMaps []DirMapping
	JSON       bool // dump format
	Debug      bool
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
}

// Validate normalizes the sync file path and the directory mappings and rejects anything
// the tracking store would refuse. Mapping and file management options only apply in init
// mode and are cleared otherwise.
func (c *Config) Validate() error {
	if c.Mode.Has(ModeDump) {
		c.Mode |= ModeDryRun
	}

	if !c.Mode.Has(ModeInit) {
		c.Mode &^= ModePurge | ModeOverwrite
		c.AddMaps = nil
		c.RemoveMaps = nil
	}

	path := utils.SanitizePath(c.SyncFile)
	if path == "" {
		return fmt.Errorf("%w: tracking file path is empty", syncstate.ErrInvalidPath)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: tracking file path %q is not absolute", syncstate.ErrInvalidPath, path)
	}
	if utils.DirExists(path) {
		return fmt.Errorf("%w: tracking file path %q resolves to a directory", syncstate.ErrInvalidPath, path)
	}
	c.SyncFile = path

	for _, maps := range [][]DirMapping{c.AddMaps, c.RemoveMaps} {
		for i := range maps {
			if err := maps[i].normalize(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (d *DirMapping) normalize() error {
	local := utils.ExpandHome(d.LocalPath)
	if !filepath.IsAbs(local) {
		return fmt.Errorf("%w: local directory %q must be absolute", syncstate.ErrInvalidPath, d.LocalPath)
	}
	if _, _, err := syncstate.ParseS3URI(d.S3URI); err != nil {
		return err
	}
	d.LocalPath = filepath.Clean(local)
	return nil
}

// ParseDirFlags splits repeated `PATH=S3_DEST` flag values at their first '='.
func ParseDirFlags(values []string) ([]DirMapping, error) {
	maps := make([]DirMapping, 0, len(values))
	for _, v := range values {
		local, uri, ok := strings.Cut(v, "=")
		if !ok || local == "" || uri == "" {
			return nil, fmt.Errorf("%w: %q is not of the form PATH=s3://bucket-name/prefix", syncstate.ErrInvalidDestination, v)
		}
		maps = append(maps, DirMapping{LocalPath: local, S3URI: uri})
	}
	return maps, nil
}
