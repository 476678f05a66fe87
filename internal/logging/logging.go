// Package logging builds the component loggers used across gtd.
//
// Every component gets a stdlib *log.Logger with a "[component] " prefix.
// Output goes to stderr and, when a file is configured, to a size-rotated
// log file.
package logging

import (
	"io"
	"log"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log outputs.
type Options struct {
	// File enables a rotated log file at this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose enables debug loggers.
	Verbose bool

	// Stderr replaces os.Stderr, mostly for tests.
	Stderr io.Writer
}

// Factory hands out component loggers sharing one output.
type Factory struct {
	out     io.Writer
	file    *lumberjack.Logger
	verbose atomic.Bool
}

// New creates a Factory.
func New(opts Options) *Factory {
	f := &Factory{}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	f.out = stderr

	if opts.File != "" {
		f.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		f.out = io.MultiWriter(stderr, f.file)
	}
	f.verbose.Store(opts.Verbose)
	return f
}

// Logger returns a logger for component.
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Debug returns a logger for component whose output is dropped unless the
// factory is verbose. Toggling verbosity affects existing debug loggers.
func (f *Factory) Debug(component string) *log.Logger {
	return log.New(debugWriter{f}, "["+component+"] DEBUG: ", log.LstdFlags)
}

// SetVerbose switches debug output on or off.
func (f *Factory) SetVerbose(v bool) {
	f.verbose.Store(v)
}

// Verbose reports whether debug output is on.
func (f *Factory) Verbose() bool {
	return f.verbose.Load()
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

type debugWriter struct {
	f *Factory
}

func (w debugWriter) Write(p []byte) (int, error) {
	if !w.f.verbose.Load() {
		return len(p), nil
	}
	return w.f.out.Write(p)
}
