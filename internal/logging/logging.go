// Package logging implements a LOG_LEVEL-driven leveled logger, generalizing
// the teacher's tag-filtered debug package (env-var-gated, built once at
// package init, with a fast-path enabled check) from a single on/off switch
// into five ordered severities.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is an ordered logging severity, from most to least severe.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

func parseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	case "trace":
		return LevelTrace, true
	default:
		return 0, false
	}
}

var opts struct {
	mu     sync.RWMutex
	level  Level
	logger *log.Logger
}

func init() {
	opts.level = LevelInfo
	opts.logger = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

	if lvl, ok := parseLevel(os.Getenv("LOG_LEVEL")); ok {
		opts.level = lvl
	}
}

// SetLevel overrides the configured level; used by tests and by cmd/s3proxy
// if a future flag should take precedence over LOG_LEVEL.
func SetLevel(l Level) {
	opts.mu.Lock()
	defer opts.mu.Unlock()
	opts.level = l
}

func enabled(l Level) bool {
	opts.mu.RLock()
	defer opts.mu.RUnlock()
	return l <= opts.level
}

func logf(l Level, format string, args ...interface{}) {
	if !enabled(l) {
		return
	}
	opts.logger.Output(3, fmt.Sprintf("[%s] %s", l, fmt.Sprintf(format, args...)))
}

func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Tracef(format string, args ...interface{}) { logf(LevelTrace, format, args...) }
