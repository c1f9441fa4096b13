// Package config loads qrattend settings from an optional .env-style file
// and the environment using Viper, then validates them.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultFile is read when Load is given an empty path.
const DefaultFile = ".env"

// Config holds application configuration. Environment variables override
// values from the file.
type Config struct {
	// Database is the SQLite file for the attendance log.
	Database string `mapstructure:"QRATTEND_DB" validate:"required"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"QRATTEND_LOG_LEVEL" validate:"oneof=debug info warn error"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"QRATTEND_LOG_FORMAT" validate:"oneof=text json"`

	// ScanFPS is the requested decode rate.
	ScanFPS int `mapstructure:"QRATTEND_SCAN_FPS" validate:"gte=1,lte=60"`
	// ScanRegion is the side of the centred scan square in pixels; 0 scans the whole frame.
	ScanRegion  int    `mapstructure:"QRATTEND_SCAN_REGION" validate:"gte=0,lte=4096"`
	ScanSurface string `mapstructure:"QRATTEND_SCAN_SURFACE" validate:"required"`
	// FocusMode is continuous, auto, manual or empty for the device default.
	FocusMode string `mapstructure:"QRATTEND_FOCUS_MODE" validate:"omitempty,oneof=continuous auto manual"`

	// QRSize is the rendered PNG side in pixels.
	QRSize int `mapstructure:"QRATTEND_QR_SIZE" validate:"gte=64,lte=4096"`
	// QRLevel is the error correction level: low, medium, high or highest.
	QRLevel string `mapstructure:"QRATTEND_QR_LEVEL" validate:"oneof=low medium high highest"`
}

var validate = validator.New()

// Load reads path (DefaultFile when empty) if present, then the
// environment, and validates the result. A missing file is ignored;
// a file that exists but cannot be parsed is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.AutomaticEnv()

	v.SetDefault("QRATTEND_DB", "attendance.db")
	v.SetDefault("QRATTEND_LOG_LEVEL", "info")
	v.SetDefault("QRATTEND_LOG_FORMAT", "text")
	v.SetDefault("QRATTEND_SCAN_FPS", 10)
	v.SetDefault("QRATTEND_SCAN_REGION", 250)
	v.SetDefault("QRATTEND_SCAN_SURFACE", "qr-reader")
	v.SetDefault("QRATTEND_FOCUS_MODE", "continuous")
	v.SetDefault("QRATTEND_QR_SIZE", 256)
	v.SetDefault("QRATTEND_QR_LEVEL", "medium")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.FocusMode = strings.ToLower(cfg.FocusMode)
	cfg.QRLevel = strings.ToLower(cfg.QRLevel)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", describe(err))
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)
}

// describe turns validator errors into messages naming the variables.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", envName(fe.StructField()), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

var envNames = map[string]string{
	"Database":    "QRATTEND_DB",
	"LogLevel":    "QRATTEND_LOG_LEVEL",
	"LogFormat":   "QRATTEND_LOG_FORMAT",
	"ScanFPS":     "QRATTEND_SCAN_FPS",
	"ScanRegion":  "QRATTEND_SCAN_REGION",
	"ScanSurface": "QRATTEND_SCAN_SURFACE",
	"FocusMode":   "QRATTEND_FOCUS_MODE",
	"QRSize":      "QRATTEND_QR_SIZE",
	"QRLevel":     "QRATTEND_QR_LEVEL",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

// NewLogger builds the process logger. verbose forces debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
