// Package log provides the process-wide zap logger used by the monitoring
// service. The algorithmic packages never log; everything above them receives
// a *zap.SugaredLogger from here.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

var (
	sugar      *zap.SugaredLogger
	baseLogger *zap.Logger
)

// Init builds the package logger. Debug mode uses zap's development config
// (console encoder, debug level); otherwise the JSON production config.
func Init(debug bool) error {
	var (
		zl  *zap.Logger
		err error
	)

	if debug {
		zl, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	baseLogger = zl
	sugar = zl.Sugar()
	return nil
}

func ensure() {
	if sugar == nil {
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		sugar = baseLogger.Sugar()
	}
}

// GetZapLogger returns the unsugared logger, e.g. for bridging GORM's logger.
func GetZapLogger() *zap.Logger {
	ensure()
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance
func GetSugaredLogger() *zap.SugaredLogger {
	ensure()
	return sugar
}

// Named returns a child logger tagged with a component name, without the
// caller skip used by the package-level helpers.
func Named(component string) *zap.SugaredLogger {
	ensure()
	return baseLogger.WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(component)
}

// Sync flushes any buffered log entries
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugf(template string, args ...interface{}) {
	ensure()
	sugar.Debugf(template, args...)
}

func Info(args ...interface{}) {
	ensure()
	sugar.Info(args...)
}

func Infof(template string, args ...interface{}) {
	ensure()
	sugar.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	ensure()
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	ensure()
	sugar.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	ensure()
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	ensure()
	sugar.Errorw(msg, keysAndValues...)
}

func Fatalf(template string, args ...interface{}) {
	ensure()
	sugar.Fatalf(template, args...)
	os.Exit(1)
}
