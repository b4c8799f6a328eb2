package logger

import "strings"

var allowedLevels = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedOutcome = map[string]string{
	"ok":        "ok",
	"fail":      "fail",
	"denied":    "denied",
	"cancelled": "cancelled",
	"invalid":   "invalid",
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome == "" {
		return "", false
	}
	val, ok := allowedOutcome[outcome]
	return val, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"command",
	"state",
	"next_state",
	"outcome",
	"duration_ms",
	"messages",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"store",
	"version",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
	"attempts",
}
