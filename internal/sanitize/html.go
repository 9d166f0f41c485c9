package sanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all HTML tags and attributes.
	// Use for fields that should only contain plain text (titles, names, venues).
	StrictPolicy = bluemonday.StrictPolicy()

	// UGCPolicy allows safe user-generated content with basic formatting.
	// Use for event descriptions.
	UGCPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML tags and returns plain text. The policy output is
// entity-escaped, so it is unescaped again: these fields are stored and
// served as plain text, and an apostrophe in a title must stay an apostrophe.
func Text(input string) string {
	return html.UnescapeString(StrictPolicy.Sanitize(input))
}

// HTML sanitizes HTML content, allowing safe formatting tags.
// Removes: <script>, <iframe>, onclick handlers, style attributes.
func HTML(input string) string {
	return UGCPolicy.Sanitize(input)
}
