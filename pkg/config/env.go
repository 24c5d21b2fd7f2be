// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads .env / .env.local into the process environment if present.
// Missing files are not an error — production deployments set real env vars.
func LoadEnv(logger *logrus.Logger) {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Overload(name); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).WithField("file", name).Warn("failed to load env file")
		}
	}
}

// GetEnv returns the value of key, or def if unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt returns the integer value of key, or def if unset or unparsable.
func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvBool returns the boolean value of key, or def if unset or unparsable.
func GetEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// RequireEnv returns the value of key, fatally logging and exiting if unset.
func RequireEnv(logger *logrus.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logger.Fatalf("required environment variable %s is not set", key)
	}
	return v
}

// GetLogLevel maps LOG_LEVEL to a logrus level, defaulting to info.
func GetLogLevel() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
