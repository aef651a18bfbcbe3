package logger

import (
	"time"
)

// LogRequest records one outbound HTTP exchange at a level matching its status.
func LogRequest(l Logger, method, url string, statusCode int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": elapsed.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		l.WarnWithFields("HTTP request failed", fields)
	case statusCode >= 400:
		l.DebugWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, settings map[string]interface{}) {
	l.WithField("component", component).InfoWithFields("component started", settings)
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component string, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("component stopped")
}
