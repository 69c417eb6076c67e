// Package logger builds configured slog loggers for the analysis pipeline.
//
// It provides a small factory over log/slog with functional options for
// format, level, output and static attributes, plus context extractors that
// inject request-scoped values (like request ids) into every record.
//
//	log := logger.New(
//	    logger.WithProduction("churnd"),
//	    logger.WithContextValue("request_id", requestIDKey),
//	)
//	logger.SetAsDefault(log)
//
// Attribute helpers (Error, Component, RunID, ...) keep log keys consistent
// across packages.
package logger
