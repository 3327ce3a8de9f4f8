package comdirect

import "regexp"

// The bank prefixes every line of a multi-line remittance info with a
// two-digit line sequence number glued to the text, e.g.
// "01REWE SAGT DANKE\n02FILIALE 1234". The prefix is only stripped when
// the two digits sit at line start and are immediately followed by a
// letter, so decimal amounts ("12.50") and plain numbers ("12 EUR") pass
// through untouched. This matches one bank's observed formatting quirk;
// do not broaden it without real payloads from another bank.
var linePrefixPattern = regexp.MustCompile(`(?m)^[0-9]{2}(\p{L})`)

// RemoveLineNumberPrefixes strips the per-line sequence prefixes from a
// remittance memo. Idempotent on already-clean text.
func RemoveLineNumberPrefixes(memo string) string {
	return linePrefixPattern.ReplaceAllString(memo, "$1")
}
