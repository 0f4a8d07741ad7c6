// Package log configures the global zerolog logger and renders progress
// for long-running CLI commands.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Config is the logging section of the application config
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, console, json
	Dir    string `yaml:"dir"`    // daily log files; empty disables
}

// DefaultConfig logs at info to the console
func DefaultConfig() Config {
	return Config{Level: "info", Format: "auto"}
}

// Validate checks level and format
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil || c.Level == "" {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "auto", "console", "json":
		return nil
	}
	return fmt.Errorf("invalid log format %q (want auto, console or json)", c.Format)
}

// Output holds the files opened by Setup
type Output struct {
	files []*os.File
}

// Close flushes and closes the log files
func (o *Output) Close() error {
	if o == nil {
		return nil
	}
	var first error
	for _, f := range o.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	o.files = nil
	return first
}

// Setup installs the global logger writing to stderr and, when Dir is set,
// to upstockbot_YYYY-MM-DD.log plus errors_YYYY-MM-DD.log.
func Setup(cfg Config) (*Output, error) {
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	logger, out, err := New(cfg, os.Stderr, interactive, time.Now())
	if err != nil {
		return nil, err
	}
	zlog.Logger = logger
	return out, nil
}

// New builds a logger without touching global state
func New(cfg Config, console io.Writer, interactive bool, now time.Time) (zerolog.Logger, *Output, error) {
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nil, err
	}
	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))

	useConsole := cfg.Format == "console" || ((cfg.Format == "" || cfg.Format == "auto") && interactive)
	if useConsole {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05", NoColor: !interactive}
	}

	writers := []io.Writer{console}
	out := &Output{}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		day := now.Format("2006-01-02")
		all, err := openAppend(filepath.Join(cfg.Dir, "upstockbot_"+day+".log"))
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		errs, err := openAppend(filepath.Join(cfg.Dir, "errors_"+day+".log"))
		if err != nil {
			all.Close()
			return zerolog.Nop(), nil, err
		}
		out.files = append(out.files, all, errs)
		writers = append(writers, all, minLevelWriter{w: errs, min: zerolog.ErrorLevel})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, out, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// minLevelWriter drops events below min
type minLevelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (m minLevelWriter) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

func (m minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < m.min {
		return len(p), nil
	}
	return m.w.Write(p)
}
