package logger

import (
	"os"

	"github.com/Laisky/zap"
	"github.com/Laisky/zap/zapcore"
)

// Logger is the process-wide structured logger. It is initialized eagerly so
// packages can log during their own init without ordering concerns.
var Logger *zap.Logger

func init() {
	Logger = newLogger(os.Getenv("LOG_LEVEL"))
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	return zap.New(core, zap.AddCaller())
}

// SetLevel rebuilds the logger with the given level. Mainly used by tests.
func SetLevel(level string) {
	Logger = newLogger(level)
}
