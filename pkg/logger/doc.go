// Package logger provides structured logging for mastoscrape.
//
// It wraps zerolog behind a small Logger interface so that components can
// take a logger as a dependency and tests can swap in a TestLogger or a
// no-op logger.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("component", "collector")
//	log.InfoWithFields("page fetched", map[string]interface{}{"items": 40})
//
// Console output is written to stderr with colored levels. When a log file
// is configured, events are written to both the console and the file.
package logger
