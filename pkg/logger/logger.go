// Package logger builds the zap logger every tatami binary and component
// shares. Configuration is data, not code, so the same Config can come from
// flags or a yaml file.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all the configuration for the logger.
type Config struct {
	// Level is the minimum level to emit: "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format selects the encoder, "json" or "console".
	Format string `yaml:"format"`
	// OutputFile is the log destination: "stdout", "stderr", or a file path
	// that is appended to.
	OutputFile string `yaml:"output_file"`
}

// DefaultConfig logs info and above to stdout as console lines.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", OutputFile: "stdout"}
}

// New creates a zap.Logger from the configuration. Call it once at startup
// and hand the logger down; nothing here is global.
func New(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		// An unknown level is not worth refusing to start over.
		level = zapcore.InfoLevel
	}

	sink, err := openSink(config.OutputFile)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	var encoder zapcore.Encoder
	if strings.ToLower(config.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", "tatami"))), nil
}

// openSink resolves the output destination.
func openSink(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}
