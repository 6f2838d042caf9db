package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Interface is the logging contract consumed by every usecase and
// controller in this module. Implementations must be safe for
// concurrent use; executors in the worker fleet log from many
// goroutines at once.
type Interface interface {
	Debug(message string, args ...any)
	Info(message string, args ...any)
	Warn(message string, args ...any)
	Error(err error, message string, args ...any)
	Fatal(err error, message string, args ...any)
}

type Logger struct {
	logger *zerolog.Logger
}

var _ Interface = (*Logger)(nil)

// New builds a structured logger writing JSON to stdout at the given
// level ("debug", "info", "warn", "error"; defaults to "info").
func New(level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	l := zerolog.New(os.Stdout).With().Timestamp().Logger()

	return &Logger{logger: &l}
}

func (l *Logger) Debug(message string, args ...any) {
	l.log(l.logger.Debug(), message, args...)
}

func (l *Logger) Info(message string, args ...any) {
	l.log(l.logger.Info(), message, args...)
}

func (l *Logger) Warn(message string, args ...any) {
	l.log(l.logger.Warn(), message, args...)
}

func (l *Logger) Error(err error, message string, args ...any) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
	}
	l.log(event, message, args...)
}

func (l *Logger) Fatal(err error, message string, args ...any) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
	}
	l.log(event, message, args...)
}

func (l *Logger) log(event *zerolog.Event, message string, args ...any) {
	if len(args) > 0 {
		event.Msgf(message, args...)
		return
	}
	event.Msg(message)
}
