// Package validate normalises the entities the classifier extracts from
// caller speech before any of them reach a workflow or the HIS backend.
// Validators never return raw caller input as an error message; the Message
// field is always safe to speak back.
package validate

import (
	"regexp"
	"strings"
)

// Result is the tri-state outcome of a validator.
type Result int

const (
	// Valid means the value was recognised and normalised.
	Valid Result = iota

	// Invalid means the value cannot be used; Message says what to ask for.
	Invalid

	// NeedsConfirmation means the normalised value is plausible but should be
	// read back to the caller before use.
	NeedsConfirmation
)

// String returns the lowercase name of the result.
func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case NeedsConfirmation:
		return "needs_confirmation"
	default:
		return "unknown"
	}
}

// Outcome is what every validator returns: the verdict, the normalised value
// (empty when Invalid), and a caller-facing message when not Valid.
type Outcome struct {
	Result  Result
	Value   string
	Message string
}

// OK reports whether the outcome can be used without further interaction.
func (o Outcome) OK() bool { return o.Result == Valid }

var (
	phoneStrip = regexp.MustCompile(`[\s\-\(\)\+]`)

	// Indian mobile numbers: bare 10 digits starting 6-9, optionally with a
	// leading 0, 91, or +91.
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[6-9]\d{9}$`),
		regexp.MustCompile(`^0\d{10}$`),
		regexp.MustCompile(`^91\d{10}$`),
	}

	namePattern = regexp.MustCompile(`^[A-Za-z\s\.\-']+$`)

	patientIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^HIS-\d{4}-\d{3,6}$`),
		regexp.MustCompile(`^P\d{6,10}$`),
		regexp.MustCompile(`^[A-Z]{2,4}\d{6,10}$`),
		regexp.MustCompile(`^\d{4,12}$`),
	}
)

// Phone validates an Indian mobile number and normalises it to the bare
// 10-digit form.
func Phone(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Phone number is required"}
	}
	cleaned := phoneStrip.ReplaceAllString(raw, "")

	for _, p := range phonePatterns {
		if !p.MatchString(cleaned) {
			continue
		}
		switch {
		case len(cleaned) == 12 && strings.HasPrefix(cleaned, "91"):
			return Outcome{Result: Valid, Value: cleaned[2:]}
		case len(cleaned) == 11 && strings.HasPrefix(cleaned, "0"):
			return Outcome{Result: Valid, Value: cleaned[1:]}
		case len(cleaned) == 10:
			return Outcome{Result: Valid, Value: cleaned}
		}
	}
	return Outcome{Result: Invalid, Message: "Please provide a valid 10-digit mobile number"}
}

// Gender normalises a spoken gender to Male, Female, or Other.
func Gender(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Gender is required"}
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m", "man", "boy":
		return Outcome{Result: Valid, Value: "Male"}
	case "female", "f", "woman", "girl":
		return Outcome{Result: Valid, Value: "Female"}
	case "other", "o":
		return Outcome{Result: Valid, Value: "Other"}
	}
	return Outcome{Result: Invalid, Message: "Please specify Male, Female, or Other"}
}

// Name validates a person name, collapsing whitespace and title-casing it.
// Names with characters outside letters, spaces, dots, hyphens, and
// apostrophes come back as NeedsConfirmation rather than being rejected:
// transcription mangles names often enough that a read-back is kinder.
func Name(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Name is required"}
	}
	cleaned := titleCase(strings.Join(strings.Fields(raw), " "))
	if len(cleaned) < 2 {
		return Outcome{Result: Invalid, Message: "Name seems too short"}
	}
	if !namePattern.MatchString(cleaned) {
		return Outcome{
			Result:  NeedsConfirmation,
			Value:   cleaned,
			Message: "Name contains unusual characters. Is this correct?",
		}
	}
	return Outcome{Result: Valid, Value: cleaned}
}

// PatientID validates a patient identifier against the HIS formats:
// HIS-YYYY-NNN, P followed by digits, a UHID prefix plus digits, or a bare
// 4 to 12 digit number. The value is uppercased.
func PatientID(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Patient ID is required"}
	}
	cleaned := strings.ToUpper(strings.TrimSpace(raw))

	for _, p := range patientIDPatterns {
		if p.MatchString(cleaned) {
			return Outcome{Result: Valid, Value: cleaned}
		}
	}
	return Outcome{
		Result:  NeedsConfirmation,
		Value:   cleaned,
		Message: "This doesn't look like a standard patient ID. Could you verify?",
	}
}

// titleCase uppercases the first letter of each space-separated word and
// lowercases the rest. strings.Title is deprecated and the x/text caser is
// overkill for ASCII names.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
