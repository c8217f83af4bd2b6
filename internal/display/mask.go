// Package display formats request data for admin screens.
package display

import "strings"

const visibleLocalChars = 3

// MaskGiftID hides most of a member identifier before it is shown in the
// console. A local part longer than three characters keeps its first three;
// shorter local parts are shown in full. The domain is always kept.
//
//	alice@example.com -> ali***@example.com
//	bob@example.com   -> bob***@example.com
//	member-4411       -> mem***
func MaskGiftID(identifier string) string {
	local, domain, hasDomain := splitIdentifier(identifier)

	runes := []rune(local)
	if len(runes) > visibleLocalChars {
		local = string(runes[:visibleLocalChars])
	}

	if !hasDomain {
		return local + "***"
	}
	return local + "***@" + domain
}

func splitIdentifier(identifier string) (local, domain string, ok bool) {
	at := strings.LastIndex(identifier, "@")
	if at < 0 {
		return identifier, "", false
	}
	return identifier[:at], identifier[at+1:], true
}
