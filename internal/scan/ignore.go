package scan

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/s3bsync/s3bsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".s3bsyncignore"

var defaultIgnoreLines = []string{
	ignoreFileName,
	// editors and vcs
	".git",
	".vscode",
	".idea",
	"*.swp",
	// scratch
	"*.tmp",
	"*.part",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// loadIgnore compiles the default rules plus the lines of an .s3bsyncignore file in root.
func loadIgnore(root string) *gitignore.GitIgnore {
	lines := append([]string(nil), defaultIgnoreLines...)

	ignorePath := filepath.Join(root, ignoreFileName)
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
			return gitignore.CompileIgnoreLines(lines...)
		}
		defer file.Close()

		rules := 0
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines = append(lines, line)
				rules++
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
		} else {
			slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
		}
	}

	return gitignore.CompileIgnoreLines(lines...)
}
