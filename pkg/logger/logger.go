package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Leveled logger shared by the content services.
// - zerolog underneath, JSON lines on stdout
// - keeps the printf-style helpers used across the services
// - With(op, pageID) returns a child logger carrying the request context

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	base = base.Level(parseLevel(l))
}

// SetOutput redirects log output, keeping the current level.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	lvl := base.GetLevel()
	base = zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

func parseLevel(l string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// L returns the process logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// With returns a logger tagged with the operation and, when set, the page id.
func With(op, pageID string) *zerolog.Logger {
	ctx := L().With().Str("op", op)
	if pageID != "" {
		ctx = ctx.Str("pageId", pageID)
	}
	l := ctx.Logger()
	return &l
}

func Debugf(format string, v ...interface{}) { L().Debug().Msgf(format, v...) }
func Infof(format string, v ...interface{})  { L().Info().Msgf(format, v...) }
func Warnf(format string, v ...interface{})  { L().Warn().Msgf(format, v...) }
func Errorf(format string, v ...interface{}) { L().Error().Msgf(format, v...) }

func Fatalf(format string, v ...interface{}) {
	// WithLevel keeps zerolog from exiting before the message is flushed
	L().WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	L().Info().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { L().Debug().Msg(v) }
func Info(v string)  { L().Info().Msg(v) }
func Warn(v string)  { L().Warn().Msg(v) }
func Error(v string) { L().Error().Msg(v) }

// LevelString returns the current level as text.
func LevelString() string {
	switch L().GetLevel() {
	case zerolog.DebugLevel:
		return "debug"
	case zerolog.WarnLevel:
		return "warn"
	case zerolog.ErrorLevel:
		return "error"
	case zerolog.FatalLevel:
		return "fatal"
	}
	return "info"
}
