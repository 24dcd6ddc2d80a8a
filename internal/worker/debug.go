package worker

import (
	"os"
	"strings"

	"dsatutor/internal/logger"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("DSA_TUTOR_WORKER_DEBUG"), "1")

func debugLog(format string, args ...any) {
	if workerDebugEnabled {
		logger.Log.Debugf(format, args...)
	}
}
