package clients

import (
	"fmt"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// zapLeveledLogger routes retryablehttp logs to zap. Info is demoted to
// debug since retryablehttp logs every attempt.
type zapLeveledLogger struct {
	logger *zap.Logger
}

var _ retryablehttp.LeveledLogger = (*zapLeveledLogger)(nil)

func newRetryLogger(l *zap.Logger) *zapLeveledLogger {
	return &zapLeveledLogger{logger: l.WithOptions(zap.AddCallerSkip(1))}
}

func (z *zapLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, fields(keysAndValues)...)
}

func (z *zapLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, fields(keysAndValues)...)
}

func (z *zapLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, fields(keysAndValues)...)
}

func (z *zapLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.logger.Warn(msg, fields(keysAndValues)...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, zap.Any(key, keysAndValues[i+1]))
	}
	return out
}
