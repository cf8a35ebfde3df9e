package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
	mu            sync.RWMutex
)

// Options controls how the default logger is built.
type Options struct {
	Level       string    // debug, info, warn or error
	Environment string    // "development" switches to the console writer
	Output      io.Writer // defaults to os.Stdout
}

// Init configures the default logger. Only the first call has any effect.
func Init(opts Options) {
	once.Do(func() {
		set(build(opts))
	})
}

// Configure replaces the default logger unconditionally.
// Commands call it after the configuration file has been read.
func Configure(opts Options) {
	once.Do(func() {})
	set(build(opts))
}

func build(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Environment, "development") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func set(l zerolog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// Get returns the default logger, initializing it with defaults if needed.
func Get() *zerolog.Logger {
	Init(Options{})
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	return &l
}

// With returns a child of the default logger carrying the given key/value pairs.
func With(args ...any) zerolog.Logger {
	return Get().With().Fields(args).Logger()
}

// Info logs an informational message using the default logger.
func Info(msg string, args ...any) {
	Get().Info().Fields(args).Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, args ...any) {
	Get().Warn().Fields(args).Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, args ...any) {
	Get().Error().Err(err).Fields(args).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, args ...any) {
	Get().Debug().Fields(args).Msg(msg)
}
