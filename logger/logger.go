package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"chartfeed/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Records go to stdout in the configured
// format and, when OutputFile is set, to a rotated JSON file as well.
func New(opts config.LogConfig) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	cores := []zapcore.Core{stdoutCore(opts, lvl)}
	if opts.OutputFile != "" {
		fc, err := fileCore(opts, lvl)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fc)
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Environment != "" {
		log = log.With(zap.String("env", opts.Environment))
	}
	return log, nil
}

// console reports whether stdout gets the human readable encoding. Dev
// always does.
func console(opts config.LogConfig) bool {
	return opts.Environment == "dev" || opts.Format == "console"
}

func stdoutCore(opts config.LogConfig, lvl zapcore.Level) zapcore.Core {
	var enc zapcore.Encoder
	if console(opts) {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		enc = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}
	return zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl)
}

func fileCore(opts config.LogConfig, lvl zapcore.Level) (zapcore.Core, error) {
	if err := os.MkdirAll(filepath.Dir(opts.OutputFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   opts.OutputFile,
		MaxSize:    opts.MaxSizeMB, // MB, lumberjack uses 100 when zero
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	})
	return zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), w, lvl), nil
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
