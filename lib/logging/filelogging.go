package logging

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/ziflex/lecho/v3"
)

// Logger writes to STDOUT unless a log file path is configured.
func Logger(logFilePath string) *lecho.Logger {
	logger := lecho.New(
		os.Stdout,
		lecho.WithLevel(log.DEBUG),
		lecho.WithTimestamp(),
	)
	if logFilePath != "" {
		file, err := GetLoggingFile(logFilePath, time.Now())
		if err != nil {
			logger.Errorf("failed to create logging file: %v", err)
			return logger
		}
		logger.SetOutput(file)
	}

	return logger
}

// GetLoggingFile opens a dated log file next to path, e.g. hub.log -> hub-2024-10-01.log.
func GetLoggingFile(path string, day time.Time) (*os.File, error) {
	return os.OpenFile(datedPath(path, day), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
}

func datedPath(path string, day time.Time) string {
	suffix := day.Format("-2006-01-02")
	extension := filepath.Ext(path)
	if extension == "" {
		return path + suffix + ".log"
	}
	return strings.TrimSuffix(path, extension) + suffix + extension
}
