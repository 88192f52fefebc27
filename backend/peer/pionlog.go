package peer

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// zerologFactory routes pion internal logs to zerolog.
type zerologFactory struct {
	logger zerolog.Logger
}

func (f *zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLeveled{
		logger: f.logger.With().Str("scope", scope).Logger(),
	}
}

type zerologLeveled struct {
	logger zerolog.Logger
}

func (l *zerologLeveled) Trace(msg string) { l.logger.Trace().Msg(msg) }
func (l *zerologLeveled) Tracef(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// pion is chatty on debug, its debug goes to our trace
func (l *zerologLeveled) Debug(msg string) { l.logger.Trace().Msg(msg) }
func (l *zerologLeveled) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

func (l *zerologLeveled) Info(msg string) { l.logger.Debug().Msg(msg) }
func (l *zerologLeveled) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *zerologLeveled) Warn(msg string) { l.logger.Warn().Msg(msg) }
func (l *zerologLeveled) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *zerologLeveled) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *zerologLeveled) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}
