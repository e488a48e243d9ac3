package usage

import "time"

// SetRandFloat overrides the sampling source for tests.
func (l *Logger) SetRandFloat(f func() float64) {
	l.randFloat = f
}

// SetNowFunc overrides the logger clock for tests.
func (l *Logger) SetNowFunc(now func() time.Time) {
	l.now = now
}

// RedactArgs exposes argument redaction for tests.
var RedactArgs = redactArgs

// ClampPreview exposes preview clamping for tests.
var ClampPreview = clampPreview
