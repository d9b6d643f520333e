package backend

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageLabel returns the English display name of a BCP 47 code, for
// example "French" for "fr". Unknown codes are returned unchanged.
func LanguageLabel(code string) string {
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
