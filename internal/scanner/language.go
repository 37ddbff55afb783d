package scanner

import (
	"strings"
)

// languageMap maps file extensions to the languages phpflow recognises.
var languageMap = map[string]string{
	".php":   "php",
	".phtml": "php",
	".inc":   "php",
	".php3":  "php",
	".php4":  "php",
	".php5":  "php",
	".php7":  "php",
	".php8":  "php",
	".phps":  "php",
}

// DefaultExtensions returns the extensions scanned when none are configured.
func DefaultExtensions() []string {
	return []string{".php", ".phtml", ".inc"}
}

// DetectLanguage returns the language for a file extension, or "" when the
// extension is not a PHP source.
func DetectLanguage(ext string) string {
	return languageMap[strings.ToLower(ext)]
}

// IsPHP reports whether ext is a PHP source extension.
func IsPHP(ext string) bool {
	return DetectLanguage(ext) == "php"
}
