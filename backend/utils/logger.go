package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerConfig selects the format and level of the process logger.
type LoggerConfig struct {
	// json or text
	Format string
	// debug, info, warn, error
	Level string
	// Defaults to os.Stdout
	Output *os.File
	// Colored levels in text mode
	EnableColors bool
}

// InitLogger builds the process logger. Text format is meant for local runs,
// json for anything shipped to a collector.
func InitLogger(config ...LoggerConfig) *zap.Logger {
	var cfg LoggerConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			level = zapcore.InfoLevel
		}
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		if cfg.EnableColors {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(cfg.Output), level)
	return zap.New(core, zap.AddCaller()).Named("learning-platform")
}
