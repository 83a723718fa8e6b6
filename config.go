package octosite

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var nopLogger = zerolog.Nop()
var logger = &nopLogger

// SetupLogger installs the logger used by the router, middlewares and the
// asset handler. A nil logger silences them.
func SetupLogger(l *zerolog.Logger) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	if l == nil {
		l = &nopLogger
	}
	logger = l
}

// GetLogger returns the currently installed logger.
func GetLogger() *zerolog.Logger {
	return logger
}
