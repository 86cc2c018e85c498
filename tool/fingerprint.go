package tool

import "strings"

// CheckFingerPrintIsSame reports whether a peer's fingerprint is our own (self discovery).
func CheckFingerPrintIsSame(fromFingerprint, selfFingerprint string) bool {
	if selfFingerprint == "" || fromFingerprint == "" {
		return false
	}
	return strings.EqualFold(fromFingerprint, selfFingerprint)
}
