// Package logger provides the agent's structured logger: zerolog underneath,
// short printf-style helpers on top so call sites read like the rest of the
// codebase's operational narration.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how the global logger is constructed.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // console-writer output instead of JSON
	Output io.Writer
}

var (
	mu     sync.RWMutex
	global = New(Config{Level: "info", Pretty: true})
)

// New builds a zerolog.Logger from Config, defaulting to info/pretty.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// SetGlobalLogger replaces the package-level logger used by the Infof/Warnf/
// Errorf/Debugf helpers.
func SetGlobalLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Infof(format string, args ...any)  { l := current(); l.Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { l := current(); l.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { l := current(); l.Error().Msgf(format, args...) }
func Debugf(format string, args ...any) { l := current(); l.Debug().Msgf(format, args...) }

func Info(msg string)  { l := current(); l.Info().Msg(msg) }
func Warn(msg string)  { l := current(); l.Warn().Msg(msg) }
func Error(msg string) { l := current(); l.Error().Msg(msg) }
func Debug(msg string) { l := current(); l.Debug().Msg(msg) }

// Errorw logs an error with key/value context pairs, e.g. Errorw("order failed", "symbol", sym, "err", err).
func Errorw(msg string, kv ...any) {
	l := current()
	ev := l.Error()
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			ev = ev.Interface(key, kv[i+1])
		}
	}
	ev.Msg(msg)
}
