package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the run logger. Text goes to stderr and, when logFile
// is set, JSON lines are appended to it. Quiet raises the stderr threshold
// to errors so a progress display owns the terminal; the file still gets
// everything at level. The returned func closes the log file.
func SetupLogger(logFile string, level slog.Level, quiet bool) (*slog.Logger, func() error) {
	stderrLevel := level
	if quiet {
		stderrLevel = slog.LevelError
	}
	noop := func() error { return nil }

	if logFile == "" {
		return slog.New(textHandler(os.Stderr, stderrLevel)), noop
	}

	f, err := openLogFile(logFile)
	if err != nil {
		logger := slog.New(textHandler(os.Stderr, stderrLevel))
		logger.Error("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, noop
	}
	return fanout(os.Stderr, stderrLevel, f, level), f.Close
}

// SetupLoggerWithWriters fans out to the given writers at one level.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return fanout(stderr, level, file, level)
}

func fanout(stderr io.Writer, stderrLevel slog.Level, file io.Writer, fileLevel slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		textHandler(stderr, stderrLevel),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: fileLevel}),
	))
}

func textHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
