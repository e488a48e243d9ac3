package usage

import (
	"regexp"
	"strings"
)

// Redaction passes, applied in order. Later passes see earlier replacements,
// so a tvly- key whose body is long hex is already collapsed by the hex pass.
var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	hexRe   = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
	alnumRe = regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`)
	tvlyRe  = regexp.MustCompile(`tvly-[A-Za-z0-9<>_-]+`)
	mcpRe   = regexp.MustCompile(`mcp_[A-Za-z0-9<>]+\.[A-Za-z0-9<>._-]+`)
	paramRe = regexp.MustCompile(`(?i)\b(token|access_token|auth|apikey|api_key|key|password)=[^&\s"']+`)
)

// Redact strips credential-shaped substrings from free text before it is
// stored or previewed.
func Redact(s string) string {
	s = emailRe.ReplaceAllString(s, "<email>")
	s = hexRe.ReplaceAllString(s, "<hex>")
	s = alnumRe.ReplaceAllString(s, "<token>")
	s = tvlyRe.ReplaceAllString(s, "tvly-<redacted>")
	s = mcpRe.ReplaceAllString(s, "mcp_<redacted>")
	s = paramRe.ReplaceAllString(s, "$1=<redacted>")
	return s
}

// previewLimit is the maximum stored preview length in runes.
const previewLimit = 180

// clampPreview truncates a redacted preview, appending an ellipsis when
// anything was cut.
func clampPreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return strings.TrimRight(string(runes[:previewLimit]), " ") + "…"
}
