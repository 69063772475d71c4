// Package log provides the single package-level logger used across the
// repository, backed by charmbracelet/log. It exists so callers never touch
// charmbracelet/log directly, and so syslog mirroring has one place
// to hook in.
package log

import (
	"io"
	"log/syslog"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

var (
	mu     sync.Mutex
	logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: false,
		Level:           charmlog.InfoLevel,
	})
)

// SetLevel adjusts the global verbosity. Valid values are charmbracelet/log
// level names such as "debug", "info", "warn", "error"; the CLI's --verbose
// flag sets "debug".
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return
	}
	logger.SetLevel(lvl)
}

// MirrorToSyslog duplicates every line the logger emits to the local syslog
// daemon, in addition to stderr. threshold must parse as a level or nothing
// is mirrored; it does not select which lines are mirrored (the logger's own
// level does that). Failure to dial syslog is logged and
// otherwise ignored — this is diagnostic plumbing, not load-bearing.
func MirrorToSyslog(threshold string) {
	lvl, err := charmlog.ParseLevel(threshold)
	if err != nil {
		Warnf("invalid syslog threshold %q: %v", threshold, err)
		return
	}

	w, err := syslog.New(syslog.LOG_INFO, "ddcutil")
	if err != nil {
		Debugf("syslog unavailable: %v", err)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	logger = charmlog.NewWithOptions(io.MultiWriter(os.Stderr, &syslogFilter{w: w, threshold: lvl}), charmlog.Options{
		ReportTimestamp: false,
		Level:           logger.GetLevel(),
	})
}

// syslogFilter forwards every write to syslog; charmbracelet/log already
// filters by its own level before the writer ever sees bytes. The threshold
// field is stored but Write does not consult it.
type syslogFilter struct {
	w         *syslog.Writer
	threshold charmlog.Level
}

func (s *syslogFilter) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func Debug(msg string, kv ...interface{})            { logger.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})              { logger.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})              { logger.Warn(msg, kv...) }
func Error(msg string, kv ...interface{})             { logger.Error(msg, kv...) }
func Debugf(format string, args ...interface{})       { logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})        { logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})        { logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{})       { logger.Errorf(format, args...) }
func Fatalf(format string, args ...interface{})       { logger.Fatalf(format, args...) }
func Fatal(msg string, kv ...interface{})             { logger.Fatal(msg, kv...) }

// WithPrefix returns a derived logger scoped to a subsystem, e.g.
// log.WithPrefix("detect"), so multi-worker output can be told apart at
// debug level.
func WithPrefix(prefix string) *charmlog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger.WithPrefix(prefix)
}
