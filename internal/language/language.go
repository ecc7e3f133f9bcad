// Package language normalizes language identifiers reported by the lingua
// backend. All conversions (BCP 47 tags, ISO 639 codes, display names) are
// consolidated here so regions always persist one canonical form.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Canonical converts any recognizable language identifier ("eng", "en-US",
// "EN_us") to its ISO 639-1 base code. Unrecognized input returns "" so
// callers can fall back to the document default.
func Canonical(code string) string {
	tag, ok := parse(code)
	if !ok {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

// DisplayName returns the English display name for a language identifier,
// or "" when the identifier is unrecognized.
func DisplayName(code string) string {
	tag, ok := parse(code)
	if !ok {
		return ""
	}
	return display.English.Tags().Name(tag)
}

func parse(code string) (language.Tag, bool) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if trimmed == "" {
		return language.Und, false
	}
	tag, err := language.Parse(trimmed)
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}
