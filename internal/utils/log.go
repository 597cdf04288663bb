package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel mirrors the teacher's utils.LogLevel so call sites that read
// like "utils.SetLogLevel(utils.LogLevelDebug)" keep working; it now
// selects a zap level instead of gating a bare fmt.Fprintf.
type LogLevel uint8

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
	LogLevelNothing
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.Level(127) // above Error: nothing logs
	}
}

var logger = newLogger(LogLevelNothing)

func newLogger(level LogLevel) *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "t"
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   "quiccore.log",
			MaxSize:    64, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		}),
		level.zapLevel(),
	)
	return zap.New(core).Sugar()
}

// SetLogLevel reconfigures the package logger's minimum level and rotating
// sink, matching the teacher's SetLogLevel entry point.
func SetLogLevel(level LogLevel) {
	logger = newLogger(level)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { logger.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { logger.Infof(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { logger.Errorf(format, args...) }
