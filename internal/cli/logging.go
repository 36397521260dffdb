package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/userhub/userhub/internal/constants"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds the logging configuration shared by the services.
type LogConfig struct {
	Verbosity int
	JSONLogs  bool

	// File, when set, receives a copy of every log record. It is rotated once it reaches MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(level int) {
	slog.SetLogLoggerLevel(getLevel(level))
}

// SetSlog sets the logging level and format for the default logger.
//
// It returns a closer for the log file, which is a no-op when no file is configured.
func SetSlog(cfg LogConfig) (closer func() error) {
	closer = func() error { return nil }
	slogLevel := getLevel(cfg.Verbosity)

	if !cfg.JSONLogs && cfg.File == "" {
		SetVerbosity(cfg.Verbosity)
		return closer
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closer = rotator.Close
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	if cfg.JSONLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
		return closer
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	return closer
}

func getLevel(level int) slog.Level {
	switch level {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
