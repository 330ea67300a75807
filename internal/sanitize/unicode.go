// Package sanitize cleans raw dataset lines before they are decoded.
package sanitize

import "regexp"

// escapeRun matches one or more literal \uXXXX sequences written back to back.
var escapeRun = regexp.MustCompile(`(\\u[0-9A-Fa-f]{4})+`)

// UnicodeEscapes collapses every run of literal \uXXXX escape text into a
// single space. Real non-ASCII characters are left alone.
func UnicodeEscapes(s string) string {
	return escapeRun.ReplaceAllString(s, " ")
}
