// Package log provides quern's structured logging facade and utilities.
//
// # Overview
//
// Loggers carry leveled methods (Debug through Fatal) plus typed Field
// constructors for structured context. Records flow through a slog.Handler
// bridge into the package's formatter and output pipeline, so code logging
// via this facade and code logging via slog render identically.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("broker"))
//	l.Info("queue created", log.Str("queue", "orders"))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, selecting JSON
// or text formatting. RedirectStdLog routes the standard library's global
// logger through the facade so dependency output lands in the same stream.
package log
