package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	stdout zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	stderr zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
)

// New builds a logger writing to stdout. format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	return build(lvl, format)
}

// NewAudit builds the stdout logger for audit lines. It is pinned to Info
// so LOG_LEVEL cannot silence it.
func NewAudit(format string) (*zap.Logger, error) {
	return build(zapcore.InfoLevel, format)
}

func build(lvl zapcore.Level, format string) (*zap.Logger, error) {
	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	case "json":
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	core := zapcore.NewCore(enc, stdout, zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(stderr)), nil
}
