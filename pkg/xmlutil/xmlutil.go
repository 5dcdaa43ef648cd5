// Package xmlutil wraps untrusted text in XML-delimited prompt sections.
package xmlutil

import "strings"

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape neutralizes the characters that could open or close a tag. Whitespace and
// quotes pass through unchanged so the text reads the same to a model.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Section returns s escaped and enclosed in <tag>...</tag> on its own lines.
func Section(tag, s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2*len(tag) + 8)
	b.WriteString("<" + tag + ">\n")
	b.WriteString(Escape(s))
	b.WriteString("\n</" + tag + ">")
	return b.String()
}
