package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// SanitizePathSegment sanitizes one directory name produced from untrusted
// text. Whitespace runs collapse to one space and leading dots are removed so
// a segment can never be "." or ".." or a hidden directory.
func SanitizePathSegment(value string) string {
	cleaned := strings.Join(strings.Fields(SanitizeFileName(value)), " ")
	cleaned = strings.TrimLeft(cleaned, ".")
	return strings.TrimSpace(cleaned)
}
