package ai

import (
	"os"
	"strings"
)

// isDebug reports whether DEVSECWATCH_AI_DEBUG asks for request/response
// logging. Valid values: "1", "true", "all".
func isDebug() bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv("DEVSECWATCH_AI_DEBUG"))) {
	case "all", "1", "true":
		return true
	default:
		return false
	}
}
