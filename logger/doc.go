// Package logger provides structured logging for bytepipe using zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and a named registry. Logs go to stderr by default so they never
// mix with pipeline output written to stdout.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("stream")
//	log.Info("pipeline finished", logger.Fields(logger.FieldBytes, n))
package logger
