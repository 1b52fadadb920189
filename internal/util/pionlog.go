package util

import (
	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logging into the pterm logger so
// that ICE/DTLS/SCTP messages share the process log format.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{log: Scoped("pion/" + scope)}
}

// pionLogger adapts Logger to logging.LeveledLogger. pion's info level is
// chatty, so it is demoted to debug; trace is dropped entirely.
type pionLogger struct {
	log Logger
}

func (p pionLogger) Trace(string)                              {}
func (p pionLogger) Tracef(string, ...interface{})             {}
func (p pionLogger) Debug(msg string)                          { p.log.Debug("%s", msg) }
func (p pionLogger) Debugf(format string, args ...interface{}) { p.log.Debug(format, args...) }
func (p pionLogger) Info(msg string)                           { p.log.Debug("%s", msg) }
func (p pionLogger) Infof(format string, args ...interface{})  { p.log.Debug(format, args...) }
func (p pionLogger) Warn(msg string)                           { p.log.Warn("%s", msg) }
func (p pionLogger) Warnf(format string, args ...interface{})  { p.log.Warn(format, args...) }
func (p pionLogger) Error(msg string)                          { p.log.Error("%s", msg) }
func (p pionLogger) Errorf(format string, args ...interface{}) { p.log.Error(format, args...) }
