package accesscode

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeContact canonicalizes a delivery contact before it is embedded in
// a code: phone numbers become E.164 (parsed against defaultRegion), emails
// are trimmed and lower-cased, anything else is returned trimmed.
func NormalizeContact(contact, defaultRegion string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return ""
	}
	if strings.Contains(contact, "@") {
		return strings.ToLower(contact)
	}
	num, err := libphonenumber.Parse(contact, defaultRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return contact
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
