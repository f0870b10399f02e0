// Package logging wires ndncore's two logging libraries: zap for
// structured application logs (the teacher's convention throughout
// go/libraries), and zerolog for HTTP access logging in ndnserver, where a
// one-line-per-request format is the more common idiom in the retrieved
// corpus's HTTP-facing services.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// New builds the application-wide *zap.SugaredLogger. Callers pass the
// component name so every log line is tagged with its origin, mirroring
// the teacher's per-package logger construction.
func New(component string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Sugar().With("component", component)
}

// NewAccessLogger builds the zerolog.Logger used for per-request HTTP
// access lines in ndnserver.
func NewAccessLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
