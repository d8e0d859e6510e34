package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	appNameVar    = "PORTAL_APP_NAME"
	baseURLVar    = "PORTAL_BASE_URL"
	dataFolderVar = "PORTAL_DATA_DIR"
	logFileVar    = "PORTAL_LOG_FILE"
	timeoutVar    = "PORTAL_HTTP_TIMEOUT"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Export Portal")
}

// GetBaseURL returns the portal API base URL, without a trailing slash.
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8000/api")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderVar, "./data")
}

func (e EnvVars) GetLogFile() string {
	logFile := os.Getenv(logFileVar)
	if logFile == "" {
		return filepath.Join(e.GetDataFolder(), "portal.log")
	}
	return logFile
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

type HTTP struct{}

var _ HTTPConfig = HTTP{}

func (HTTP) GetHTTPTimeout() time.Duration {
	timeout, err := time.ParseDuration(GetEnv(timeoutVar, "30s"))
	if err != nil {
		return 30 * time.Second
	}
	return timeout
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
