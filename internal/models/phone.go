package models

import (
	"regexp"
	"strings"
)

var guardianPhonePattern = regexp.MustCompile(`^01[0-9]-?[0-9]{3,4}-?[0-9]{4}$`)

// NormalizePhone validates a Korean mobile number and renders it as 010-1234-5678 so
// that the duplicate check does not depend on how the guardian typed it.
func NormalizePhone(raw string) (string, bool) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if !guardianPhonePattern.MatchString(trimmed) {
		return "", false
	}
	digits := strings.ReplaceAll(trimmed, "-", "")
	switch len(digits) {
	case 11:
		return digits[:3] + "-" + digits[3:7] + "-" + digits[7:], true
	case 10:
		return digits[:3] + "-" + digits[3:6] + "-" + digits[6:], true
	}
	return "", false
}

// MaskPhone hides the middle block: 010-****-5678.
func MaskPhone(phone string) string {
	digits := strings.ReplaceAll(phone, "-", "")
	switch len(digits) {
	case 11:
		return digits[:3] + "-****-" + digits[7:]
	case 10:
		return digits[:3] + "-***-" + digits[6:]
	}
	return "***"
}
