package helpers

import (
	"strings"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
)

func InitLogging() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	_ = logger.New(logLevel)
}

func InitTestLogging() {
	_ = logger.New("DEVELOPMENT")
}

var logSanitizer = strings.NewReplacer("\n", "", "\r", "")

// SanitizeString removes line breaks so user input cannot forge log lines
func SanitizeString(s string) string {
	return logSanitizer.Replace(s)
}
