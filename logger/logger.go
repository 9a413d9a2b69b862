// Package logger wires a process-wide, level-gated logger in front of
// zap. The first call to Init performs real setup (stdout and file cores,
// file handle; hourly rotation happens on write); every later call only swaps the level and, if the
// file path changed, the output file — mirroring the original's
// init-once-then-reload-only-level/file semantics.
package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the original implementation's severity ladder, most to
// least severe excluded (Error is the most severe level that still logs).
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
	Trace
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Error:
		return zapcore.ErrorLevel
	case Warn:
		return zapcore.WarnLevel
	case Info:
		return zapcore.InfoLevel
	case Debug:
		return zapcore.DebugLevel
	case Trace:
		return zapcore.DebugLevel - 1
	default:
		return zapcore.InfoLevel
	}
}

var (
	once      sync.Once
	mu        sync.Mutex
	base      *zap.Logger
	atomLevel zap.AtomicLevel
	fileSync  = &switchableSyncer{}
	rotator   *hourlyRotatingWriter
	curPath   string
)

// Init sets up the package logger on its first call (stdout plus an
// hourly-rotating file core wired to a switchableSyncer). Subsequent calls
// only adjust the level, and redirect the file core's target if filePath
// differs from the one currently open — the file core itself is always
// present in the tee, even when the first Init call passed an empty
// filePath, so a later call can still turn file logging on.
func Init(level Level, filePath string) error {
	mu.Lock()
	defer mu.Unlock()

	var initErr error
	once.Do(func() {
		atomLevel = zap.NewAtomicLevelAt(level.zapLevel())
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewConsoleEncoder(encoderCfg)

		cores := []zapcore.Core{
			zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomLevel),
			zapcore.NewCore(encoder, fileSync, atomLevel),
		}
		if filePath != "" {
			w, err := newHourlyRotatingWriter(filePath)
			if err != nil {
				initErr = fmt.Errorf("logger: open log file: %w", err)
				return
			}
			rotator = w
			curPath = filePath
			fileSync.set(w)
		}
		base = zap.New(zapcore.NewTee(cores...))
	})
	if initErr != nil {
		return initErr
	}

	atomLevel.SetLevel(level.zapLevel())

	if filePath != "" && filePath != curPath {
		w, err := newHourlyRotatingWriter(filePath)
		if err != nil {
			return fmt.Errorf("logger: swap log file: %w", err)
		}
		old := rotator
		rotator = w
		curPath = filePath
		fileSync.set(w)
		if old != nil {
			old.Close()
		}
	}
	return nil
}

func logWith(level Level, identifier, message string) {
	mu.Lock()
	l := base
	mu.Unlock()
	if l == nil {
		return
	}
	l.Log(level.zapLevel(), message, zap.String("identifier", identifier))
}

// Error logs at Error level with a free-form identifier (e.g. a component
// or connection name) ahead of the message.
func Error(identifier, message string) { logWith(Error, identifier, message) }

// Warn logs at Warn level.
func Warn(identifier, message string) { logWith(Warn, identifier, message) }

// Info logs at Info level.
func Info(identifier, message string) { logWith(Info, identifier, message) }

// Debug logs at Debug level.
func Debug(identifier, message string) { logWith(Debug, identifier, message) }

// Trace logs at Trace level, the most verbose tier.
func Trace(identifier, message string) { logWith(Trace, identifier, message) }
