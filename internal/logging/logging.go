// Package logging builds the process-wide zap logger used across the
// sandbox, connector cache, workflow engine, and CLI.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop().Sugar()
)

// Level mirrors the verbosity flags accepted by the CLI (-d/-v/-q/--silent).
type Level int

const (
	LevelSilent Level = iota - 2
	LevelQuiet
	LevelInfo
	LevelVerbose
	LevelDebug
)

// Init builds the shared logger at the given level and installs it as the
// package default. Safe to call once at process start, before any
// goroutines touching Log/L are spawned.
func Init(level Level) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	switch {
	case level <= LevelSilent:
		cfg.OutputPaths = nil
		cfg.ErrorOutputPaths = nil
	case level <= LevelQuiet:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case level <= LevelInfo:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case level == LevelVerbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		// Fall back to zap's example logger rather than panic on a bad
		// terminal environment.
		l = zap.NewExample()
	}

	mu.Lock()
	log = l.Sugar()
	mu.Unlock()
}

// L returns the current shared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debugf(tpl string, args ...any) { L().Debugf(tpl, args...) }
func Infof(tpl string, args ...any)  { L().Infof(tpl, args...) }
func Warnf(tpl string, args ...any)  { L().Warnf(tpl, args...) }
func Errorf(tpl string, args ...any) { L().Errorf(tpl, args...) }
