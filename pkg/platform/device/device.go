// Package device condenses raw User-Agent headers into short human-readable
// device descriptions for audit entries.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// maxRawLength caps unparseable User-Agent strings so audit rows stay
// bounded.
const maxRawLength = 128

// DisplayName renders a User-Agent header as "<browser> on <os>". When the
// string does not parse, the raw value is kept, truncated.
func DisplayName(rawUA string) string {
	raw := strings.TrimSpace(rawUA)
	if raw == "" {
		return ""
	}

	parsed := useragent.New(raw)
	browser, _ := parsed.Browser()
	osName := parsed.OSInfo().Name

	switch {
	case browser != "" && osName != "":
		return browser + " on " + osName
	case browser != "":
		return browser
	case osName != "":
		return osName
	}

	if len(raw) > maxRawLength {
		return raw[:maxRawLength]
	}
	return raw
}
