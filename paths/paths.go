// Package paths resolves resource files relative to source directories and
// prepares output directories.
//
// The caller-relative helpers use runtime.Caller, so they report the path the
// file had at build time. Binaries built with -trimpath get module-relative
// paths instead of absolute ones.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/arloliu/looper/types"
)

// CurrentFilePath returns the path of the source file that calls it.
func CurrentFilePath() string {
	_, file, _, _ := runtime.Caller(1)
	return file
}

// CurrentFileDir returns the directory of the source file that calls it.
//
// It reads the caller frame itself; calling CurrentFilePath would add a frame.
func CurrentFileDir() string {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return ""
	}

	return filepath.Dir(file)
}

// ResourcePath joins rel onto the directory of the calling source file.
//
// Example:
//
//	schema, err := paths.ResourcePath("testdata/schema.xml")
func ResourcePath(rel string) (string, error) {
	_, file, _, ok := runtime.Caller(1)
	if !ok || file == "" {
		return "", fmt.Errorf("%w: caller source file unknown for %q", types.ErrBlankResourceBase, rel)
	}

	return filepath.Join(filepath.Dir(file), rel), nil
}

// ResourcePathIn joins rel onto base.
//
// A blank base is rejected with ErrBlankResourceBase instead of falling back to
// the working directory, which is not stable across launches. Derive base from
// CurrentFileDir (with ".." segments) or an absolute install location.
func ResourcePathIn(base, rel string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: resolving %q", types.ErrBlankResourceBase, rel)
	}

	return filepath.Join(base, rel), nil
}

// EnsureDir creates dir and any missing parents. An existing directory is left alone.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return nil
}

// IsWindows reports whether the program runs on Windows.
func IsWindows() bool {
	return isWindows(runtime.GOOS)
}

func isWindows(goos string) bool {
	return goos == "windows"
}
