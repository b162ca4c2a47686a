package handler

import "regexp"

// telegramTokenPattern matches a Telegram bot token (botId:secret) embedded
// in an error message or prompt preview, per spec.md §8's "Telegram token
// redaction" testable property.
var telegramTokenPattern = regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]+`)

// apiKeyPattern matches a generic sk-prefixed API key.
var apiKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`)

// redactSecrets replaces known secret-shaped substrings with a redacted
// placeholder, for safe inclusion in logs.
func redactSecrets(s string) string {
	s = telegramTokenPattern.ReplaceAllString(s, "bot<redacted>")
	s = apiKeyPattern.ReplaceAllString(s, "sk-<redacted>")
	return s
}
