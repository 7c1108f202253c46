// Package logging constructs the process-wide logger. It is built once in
// main and handed to every long-lived component explicitly; nothing in this
// module reaches for a package-level logger.
package logging

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New builds a logfmt logger filtered at the given level name
// ("debug", "info", "warn", "error"; unrecognized names fall back to "info").
func New(levelName string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	logger = level.NewFilter(logger, filterOption(levelName))
	return logger
}

func filterOption(levelName string) level.Option {
	switch levelName {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
