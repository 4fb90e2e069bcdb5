package logger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LogRateLimit logs a server-enforced wait before a request is retried
func LogRateLimit(log Logger, endpoint string, wait time.Duration) {
	log.WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"retry_after": wait,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// LogCollectionProgress logs how far a paginated collection has got
func LogCollectionProgress(log Logger, resource string, collected, expected int) {
	fields := map[string]interface{}{
		"resource":  resource,
		"collected": collected,
	}
	if expected > 0 {
		fields["expected"] = expected
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(collected)/float64(expected)*100)
	}
	log.InfoWithFields("Collection progress", fields)
}

// LogDownload logs a media download outcome
func LogDownload(log Logger, postID, mediaID, mediaType string, err error) {
	l := log.WithFields(map[string]interface{}{
		"post_id":    postID,
		"media_id":   mediaID,
		"media_type": mediaType,
	})
	if err != nil {
		l.WithError(err).Warn("Media download failed")
		return
	}
	l.Debug("Media downloaded")
}

// LogJournalFlush logs a batch written to an output document
func LogJournalFlush(log Logger, path string, written, total int, err error) {
	l := log.WithFields(map[string]interface{}{
		"file":    path,
		"written": written,
		"total":   total,
	})
	if err != nil {
		l.WithError(err).Error("Failed to persist batch, will retry on next flush")
		return
	}
	l.Debug("Batch persisted")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(string)                                    {}
func (n *nopLogger) Info(string)                                     {}
func (n *nopLogger) Warn(string)                                     {}
func (n *nopLogger) Error(string)                                    {}
func (n *nopLogger) Fatal(string)                                    {}
func (n *nopLogger) WithField(string, interface{}) Logger            { return n }
func (n *nopLogger) WithFields(map[string]interface{}) Logger        { return n }
func (n *nopLogger) WithError(error) Logger                          { return n }
func (n *nopLogger) WithContext(context.Context) Logger              { return n }
func (n *nopLogger) DebugWithFields(string, map[string]interface{})  {}
func (n *nopLogger) InfoWithFields(string, map[string]interface{})   {}
func (n *nopLogger) WarnWithFields(string, map[string]interface{})   {}
func (n *nopLogger) ErrorWithFields(string, map[string]interface{})  {}
func (n *nopLogger) FatalWithFields(string, map[string]interface{})  {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                     { l := zerolog.Nop(); return &l }
