// Package logger wraps zerolog behind a small Logger interface.
//
// Console output uses zerolog's ConsoleWriter with colored levels; when a
// log file is configured every line is also appended to it as JSON. Every
// line carries app and version fields, and harvest runs add run_id and
// source on top:
//
//	log := logger.GetLogger().WithFields(map[string]interface{}{
//	    "source": "karnataka",
//	    "run_id": runID,
//	})
//	log.InfoWithFields("unit processed", map[string]interface{}{
//	    "unit":    "1999-03-02",
//	    "outcome": "uploaded",
//	})
//
// Tests use NewTestLogger to capture and assert on messages.
package logger
