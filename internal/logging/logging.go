// Package logging builds the process-wide *slog.Logger. The json and console
// formats are backed by a zap core.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

type Options struct {
	Format string
	Level  slog.Level

	// Defaults to os.Stderr so log lines never mix with command output.
	Output io.Writer
}

func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level < slog.LevelInfo:
		return zapcore.DebugLevel
	case level < slog.LevelWarn:
		return zapcore.InfoLevel
	case level < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func newZapCore(format string, level slog.Level, output io.Writer) zapcore.Core {
	var encoder zapcore.Encoder

	if format == FormatJSON {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(output), zapLevel(level))
}

// New returns a logger for opts together with a function that flushes any
// buffered entries.
func New(opts Options) (*slog.Logger, func() error, error) {
	output := opts.Output

	if output == nil {
		output = os.Stderr
	}

	switch opts.Format {
	case "", FormatText:
		handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: opts.Level})

		return slog.New(handler), func() error { return nil }, nil

	case FormatJSON, FormatConsole:
		core := newZapCore(opts.Format, opts.Level, output)
		handler := zapslog.NewHandler(core, zapslog.WithName("peerfetch"))

		return slog.New(handler), core.Sync, nil

	default:
		return nil, nil, fmt.Errorf("unsupported log format '%s' (expected one of %s, %s, %s)", opts.Format, FormatText, FormatJSON, FormatConsole)
	}
}
