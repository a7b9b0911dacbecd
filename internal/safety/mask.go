package safety

import "regexp"

// Masking is centralised here so nothing else in the process formats PII.
// Card numbers are masked before Aadhaar so a spaced 16-digit group is not
// half-eaten by the 12-digit pattern.
var (
	cardPattern    = regexp.MustCompile(`\b(\d{4})[\s-]?(\d{4})[\s-]?(\d{4})[\s-]?(\d{4})\b`)
	aadhaarPattern = regexp.MustCompile(`\b(\d{4})[\s-]?(\d{4})[\s-]?(\d{4})\b`)
	phonePattern   = regexp.MustCompile(`\b(\d{6})(\d{4})\b`)

	sensitivePatterns = map[string]*regexp.Regexp{
		"aadhaar":     regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
		"credit_card": regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
		"cvv":         regexp.MustCompile(`(?i)\bCVV[\s:]?\d{3,4}\b`),
		"password":    regexp.MustCompile(`(?i)\b(password|pwd|pin)[\s:]+\S+`),
	}
)

// Mask redacts PII in text for logging: 16-digit card groups and 12-digit
// Aadhaar-like groups keep only their last four digits, 10-digit phones keep
// the last four. Mask is idempotent.
func Mask(text string) string {
	masked := cardPattern.ReplaceAllString(text, "XXXX-XXXX-XXXX-$4")
	masked = aadhaarPattern.ReplaceAllString(masked, "XXXX-XXXX-$3")
	masked = phonePattern.ReplaceAllString(masked, "XXXXXX$2")
	return masked
}

// DetectSensitive returns the kinds of sensitive data present in text
// (aadhaar, credit_card, cvv, password). Detection never blocks a call;
// it only feeds audit warnings.
func DetectSensitive(text string) []string {
	var kinds []string
	for _, kind := range []string{"aadhaar", "credit_card", "cvv", "password"} {
		if sensitivePatterns[kind].MatchString(text) {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}
