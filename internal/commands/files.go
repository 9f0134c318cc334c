package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideSandbox is returned when a file name would resolve outside the
// sandbox directory.
var ErrOutsideSandbox = errors.New("commands: path escapes the sandbox directory")

// safePath joins name onto baseDir and checks that the cleaned result stays
// strictly inside baseDir.
func safePath(baseDir, name string) (string, error) {
	if name == "" {
		return "", errors.New("commands: file name must not be empty")
	}
	cleanBase := filepath.Clean(baseDir)
	joined := filepath.Join(cleanBase, name)
	if !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideSandbox, name)
	}
	return joined, nil
}

// touch creates path if it does not exist and leaves existing content alone.
func touch(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("commands: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("commands: create file: %w", err)
	}
	return f.Close()
}

// homeDir returns $HOME/sub, or sub relative to the working directory when
// the home directory is unknown.
func homeDir(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return sub
	}
	return filepath.Join(home, sub)
}
