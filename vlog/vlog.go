// Package vlog provides vixen's structured logger: an explicit value
// constructed with the graph and threaded through every subsystem rather
// than fetched from a package global.
package vlog

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger wraps charmbracelet/log with the field conventions vixen's
// subsystems use (node, phase, frame).
type Logger struct {
	*log.Logger
}

// Options controls logger construction.
type Options struct {
	Writer      io.Writer
	Debug       bool
	ReportCaller bool
	Prefix      string
}

// New constructs a Logger. A zero Options value produces a sensible default:
// info level, timestamps on, writing to stderr.
func New(opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "vixen"
	}
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    opts.ReportCaller,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
	if opts.Debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return &Logger{l}
}

// Nop returns a Logger that discards all output, useful in tests that don't
// want to assert on log lines but still need a non-nil Logger.
func Nop() *Logger {
	return New(Options{Writer: io.Discard})
}

// WithNode returns a derived logger tagging subsequent lines with a node
// name.
func (l *Logger) WithNode(name string) *Logger {
	return &Logger{l.Logger.With("node", name)}
}

// WithFrame returns a derived logger tagging subsequent lines with a frame
// number.
func (l *Logger) WithFrame(frame uint64) *Logger {
	return &Logger{l.Logger.With("frame", frame)}
}
