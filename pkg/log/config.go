package log

import (
	stdlog "log"
	"strings"
)

// Config declares logger construction for configuration files.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ApplyConfig builds a logger from a declarative config. Format "json"
// selects the JSON formatter, everything else text.
func ApplyConfig(cfg Config) Logger {
	var formatter Formatter = &TextFormatter{}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		formatter = &JSONFormatter{}
	}
	return NewLogger(
		WithLevel(ParseLevel(cfg.Level)),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput()),
	)
}

// RedirectStdLog routes the standard library's global logger through l at
// info level, so stray log output from dependencies lands in one stream.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: l})
}

type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
