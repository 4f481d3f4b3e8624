// Package email derives presentable agent names from email addresses.
// Issued agent addresses follow firstname.lastname@domain, so the local
// part labels an account well enough until someone sets a real display name.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a human-readable name from the address's local part:
// "marie.dubois@peche.gouv.fr" becomes "Marie Dubois". Separators are dots,
// underscores, hyphens, and plus signs; a local part without any is returned
// capitalized as is.
func DisplayName(email string) string {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Agent"
	}

	for i, part := range parts {
		parts[i] = capitalize(part)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
