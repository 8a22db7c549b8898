package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// InitLogger builds the process logger from the log section.
func InitLogger(cfg *LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetReportCaller(cfg.Caller)

	// file:line, trimmed to the package directory
	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(f.File)), filepath.Base(f.File), f.Line)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: prettyCaller,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006/01/02 15:04:05",
			CallerPrettyfier: prettyCaller,
		})
	}

	logger.SetOutput(logOutput(cfg.Output))
	return logger
}

func logOutput(name string) io.Writer {
	switch name {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	default:
		return os.Stdout
	}
}
