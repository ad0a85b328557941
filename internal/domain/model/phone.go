package model

import "strings"

const (
	// KenyaCallingCode prefixes every valid M-Pesa MSISDN.
	KenyaCallingCode = "254"
	subscriberDigits = 9
)

var phoneSeparators = strings.NewReplacer(" ", "", "\t", "", "\n", "", "-", "", "(", "", ")", "", ".", "")

func stripPhone(raw string) string {
	return phoneSeparators.Replace(strings.TrimSpace(raw))
}

// FormatPhoneNumber normalizes raw input to the bare national MSISDN form (254XXXXXXXXX).
// +254XXXXXXXXX and 0XXXXXXXXX are rewritten; anything else is returned stripped
// of separators so validation can reject it.
func FormatPhoneNumber(raw string) string {
	clean := stripPhone(raw)
	switch {
	case strings.HasPrefix(clean, "+"+KenyaCallingCode):
		return clean[1:]
	case len(clean) == subscriberDigits+1 && clean[0] == '0' && allDigits(clean):
		return KenyaCallingCode + clean[1:]
	}
	return clean
}

// IsValidPhoneNumber accepts 254 + 9 digits, or the same with a leading plus.
func IsValidPhoneNumber(raw string) bool {
	national := strings.TrimPrefix(stripPhone(raw), "+")
	return len(national) == len(KenyaCallingCode)+subscriberDigits &&
		strings.HasPrefix(national, KenyaCallingCode) &&
		allDigits(national)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
