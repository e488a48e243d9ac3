package search

import "strings"

// SourceMode selects which providers serve brave_* tool calls.
type SourceMode string

// Supported source modes.
const (
	ModeTavilyOnly    SourceMode = "tavily_only"
	ModeBraveOnly     SourceMode = "brave_only"
	ModeCombined      SourceMode = "combined"
	ModeBravePrefer   SourceMode = "brave_prefer_tavily_fallback"
	DefaultSourceMode            = ModeBravePrefer
)

// ParseSourceMode parses a configured or per-call source mode. Parsing is
// case-insensitive with trimming; non-string or unrecognized input falls
// back to def.
func ParseSourceMode(v any, def SourceMode) SourceMode {
	s, ok := v.(string)
	if !ok {
		return def
	}

	switch SourceMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTavilyOnly:
		return ModeTavilyOnly
	case ModeBraveOnly:
		return ModeBraveOnly
	case ModeCombined:
		return ModeCombined
	case ModeBravePrefer:
		return ModeBravePrefer
	default:
		return def
	}
}

// OverflowMode governs the rate-gate branch of the brave-prefer plan when
// the queue-wait budget would be exceeded.
type OverflowMode string

// Supported overflow modes.
const (
	OverflowQueue    OverflowMode = "queue"
	OverflowError    OverflowMode = "error"
	OverflowFallback OverflowMode = "fallback_to_tavily"
)

// ParseOverflowMode parses an overflow mode with OverflowFallback default.
func ParseOverflowMode(s string) OverflowMode {
	switch OverflowMode(strings.ToLower(strings.TrimSpace(s))) {
	case OverflowQueue:
		return OverflowQueue
	case OverflowError:
		return OverflowError
	case OverflowFallback:
		return OverflowFallback
	default:
		return OverflowFallback
	}
}
