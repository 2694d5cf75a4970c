package env

import (
	"os"
	"strconv"

	"github.com/Laisky/zap"

	"github.com/llmgateway/llmgateway/common/logger"
)

// Bool reads a boolean environment variable, returning defaultValue when the
// variable is unset or malformed.
func Bool(env string, defaultValue bool) bool {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(os.Getenv(env))
	if err != nil {
		logger.Logger.Error("invalid boolean environment variable",
			zap.String("name", env), zap.String("value", os.Getenv(env)))
		return defaultValue
	}
	return v
}

// Int reads an integer environment variable, returning defaultValue when the
// variable is unset or malformed.
func Int(env string, defaultValue int) int {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(os.Getenv(env))
	if err != nil {
		logger.Logger.Error("invalid integer environment variable",
			zap.String("name", env), zap.String("value", os.Getenv(env)))
		return defaultValue
	}
	return v
}

// Float64 reads a float environment variable, returning defaultValue when the
// variable is unset or malformed.
func Float64(env string, defaultValue float64) float64 {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(os.Getenv(env), 64)
	if err != nil {
		logger.Logger.Error("invalid float environment variable",
			zap.String("name", env), zap.String("value", os.Getenv(env)))
		return defaultValue
	}
	return v
}

// String reads a string environment variable, returning defaultValue when the
// variable is unset.
func String(env string, defaultValue string) string {
	if env == "" || os.Getenv(env) == "" {
		return defaultValue
	}
	return os.Getenv(env)
}
