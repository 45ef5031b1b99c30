package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arloliu/looper/types"
)

// FileTimestampLayout is the layout of the timestamp embedded in log file names.
const FileTimestampLayout = "2006_01_02_150405"

// Options controls Configure.
type Options struct {
	// Level is a name accepted by ParseLevel.
	Level string

	// Folder, when set, adds a log file inside this existing directory.
	Folder string

	// FilePrefix names the log file: <Folder>/<FilePrefix>__<timestamp>.txt.
	// Required when Folder is set.
	FilePrefix string

	// Stdout overrides the console destination. Defaults to os.Stdout.
	Stdout io.Writer

	// Now overrides the clock used for the file name. Defaults to time.Now.
	Now func() time.Time
}

// Configure installs a process-wide slog default writing UTC timestamps to
// stdout and, optionally, to a freshly created log file.
//
// Returns:
//   - *SlogLogger: Logger bound to the new default handler
//   - func() error: Closes the log file; a no-op when no file was opened
//   - error: ErrLogFolderWithoutPrefix, ErrLogFolderNotFound, unknown level, or file creation failure
func Configure(opts Options) (*SlogLogger, func() error, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	out := stdout
	closeFn := func() error { return nil }

	if opts.Folder != "" {
		if opts.FilePrefix == "" {
			return nil, nil, fmt.Errorf("%w: %s", types.ErrLogFolderWithoutPrefix, opts.Folder)
		}
		info, statErr := os.Stat(opts.Folder)
		if statErr != nil || !info.IsDir() {
			return nil, nil, fmt.Errorf("%w: %s", types.ErrLogFolderNotFound, opts.Folder)
		}

		path := LogFilePath(opts.Folder, opts.FilePrefix, now())
		f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // path is built from caller-supplied folder
		if openErr != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, openErr)
		}

		out = io.MultiWriter(stdout, f)
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: utcTime,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return NewSlog(logger), closeFn, nil
}

// LogFilePath returns <folder>/<prefix>__<UTC timestamp>.txt.
func LogFilePath(folder, prefix string, t time.Time) string {
	return filepath.Join(folder, fmt.Sprintf("%s__%s.txt", prefix, t.UTC().Format(FileTimestampLayout)))
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}

	return a
}
