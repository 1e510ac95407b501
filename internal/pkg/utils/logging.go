package utils

import (
	"discharge-export-service/internal/pkg/constvars"

	"go.uber.org/zap"
)

// LogExportEvent records the outcome of an export trigger. Failed outcomes are
// logged at warn so they surface without enabling info logs.
func LogExportEvent(logger *zap.Logger, event, requestID string, success bool, fields ...zap.Field) {
	allFields := eventFields(requestID, "export_event", event, fields)
	allFields = append(allFields, zap.Bool(constvars.LoggingSuccessKey, success))
	if !success {
		logger.Warn("Export event failed", allFields...)
		return
	}
	logger.Info("Export event", allFields...)
}

func LogSecurityEvent(logger *zap.Logger, event, requestID, severity string, fields ...zap.Field) {
	allFields := eventFields(requestID, "security_event", event, fields)
	allFields = append(allFields, zap.String("severity", severity))
	logger.Warn("Security event detected", allFields...)
}

func eventFields(requestID, eventKey, event string, fields []zap.Field) []zap.Field {
	allFields := make([]zap.Field, 0, len(fields)+3)
	allFields = append(allFields,
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.String(eventKey, event),
	)
	return append(allFields, fields...)
}
