// Package logging builds the process logger: xlog backed by zerolog.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
)

// ParseLevel maps a LOG_LEVEL value to an xlog level.
func ParseLevel(s string) (xlog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return xlog.LevelDebug, nil
	case "", "info":
		return xlog.LevelInfo, nil
	case "warn", "warning":
		return xlog.LevelWarn, nil
	case "error":
		return xlog.LevelError, nil
	default:
		return xlog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New installs the zerolog adapter and returns a logger tagged with app.
func New(app, level string, console bool) (*xlog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return zerolog.Use(zerolog.Config{
		MinLevel:          lvl,
		Console:           console,
		ConsoleTimeFormat: time.RFC3339Nano,
		Caller:            lvl == xlog.LevelDebug,
		CallerSkip:        5,
	}).With(xlog.Str("app", app)), nil
}
