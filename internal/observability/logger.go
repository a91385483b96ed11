package observability

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// logger is JSON at info level until InitLogger runs
var logger = newLogger(os.Stdout, false)

// InitLogger configures the process logger from the log section of the
// config. An empty or unknown level means info. zerolog's package logger is
// pointed at the same output.
//
// It must run before any goroutine logs.
func InitLogger(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	logger = newLogger(os.Stdout, pretty)
	log.Logger = logger
}

func newLogger(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// GetLogger returns the process logger
func GetLogger() zerolog.Logger {
	return logger
}

// WithComponent tags the process logger with an adapter or service name
func WithComponent(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// WithSession creates a logger for one practice session of a chat. Every
// line carries the chat and a session id, a fresh one when sessionID is
// empty.
func WithSession(chatID int64, sessionID string) zerolog.Logger {
	return sessionLogger(logger, chatID, sessionID)
}

func sessionLogger(base zerolog.Logger, chatID int64, sessionID string) zerolog.Logger {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return base.With().
		Str("session_id", sessionID).
		Str("chat_id", strconv.FormatInt(chatID, 10)).
		Logger()
}

// NewSessionID generates a session correlation id
func NewSessionID() string {
	return uuid.New().String()
}
