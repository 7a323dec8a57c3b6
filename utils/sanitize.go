package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// SanitizeText strips markup from user supplied display text that ends up in emails and notifications.
func SanitizeText(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(input)))
}
