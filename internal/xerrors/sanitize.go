package xerrors

import "regexp"

const maxSanitizedLen = 500

// dataURLPattern matches data: URLs (the usual vector for embedded image
// bytes leaking into an error message).
var dataURLPattern = regexp.MustCompile(`data:[a-zA-Z0-9/+.-]+;base64,[A-Za-z0-9+/=]+`)

// longBase64Pattern matches base64-ish runs long enough to be payload
// rather than an id or token.
var longBase64Pattern = regexp.MustCompile(`[A-Za-z0-9+/=]{120,}`)

// Sanitize redacts embedded data URLs and long base64 runs from a message
// and truncates it, so failed ResponseItems and logs never echo user
// content (prompts, image bytes) back.
func Sanitize(msg string) string {
	msg = dataURLPattern.ReplaceAllString(msg, "[redacted-data-url]")
	msg = longBase64Pattern.ReplaceAllString(msg, "[redacted-blob]")

	if len(msg) > maxSanitizedLen {
		msg = msg[:maxSanitizedLen] + "...[truncated]"
	}

	return msg
}
