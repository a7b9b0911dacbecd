package validate

import (
	"maps"
	"slices"
	"strings"
)

// StandardDepartments is the canonical department list used when the HIS
// catalogue is unavailable. Resolution against the live catalogue happens in
// the workflows; this list backs offline validation.
var StandardDepartments = []string{
	"General Medicine",
	"Cardiology",
	"Orthopedics",
	"ENT",
	"Ophthalmology",
	"Dermatology",
	"Neurology",
	"Pediatrics",
	"Gynecology",
	"Dentistry",
	"Psychiatry",
	"Urology",
}

// departmentAliases maps colloquial and body-part names to canonical
// departments. Callers rarely say "Ophthalmology".
var departmentAliases = map[string]string{
	"heart":     "Cardiology",
	"cardio":    "Cardiology",
	"cardiac":   "Cardiology",
	"ortho":     "Orthopedics",
	"bone":      "Orthopedics",
	"bones":     "Orthopedics",
	"fracture":  "Orthopedics",
	"general":   "General Medicine",
	"medicine":  "General Medicine",
	"fever":     "General Medicine",
	"cold":      "General Medicine",
	"ent":       "ENT",
	"ear":       "ENT",
	"nose":      "ENT",
	"throat":    "ENT",
	"eye":       "Ophthalmology",
	"eyes":      "Ophthalmology",
	"skin":      "Dermatology",
	"derma":     "Dermatology",
	"neuro":     "Neurology",
	"brain":     "Neurology",
	"nerve":     "Neurology",
	"child":     "Pediatrics",
	"children":  "Pediatrics",
	"kids":      "Pediatrics",
	"baby":      "Pediatrics",
	"gynec":     "Gynecology",
	"women":     "Gynecology",
	"pregnancy": "Gynecology",
	"dental":    "Dentistry",
	"teeth":     "Dentistry",
	"tooth":     "Dentistry",
}

// DepartmentResolver maps free-form caller speech to a canonical department
// name. Resolution order: alias substring, canonical substring, phonetic
// match. Safe for concurrent use after construction.
type DepartmentResolver struct {
	aliases   map[string]string
	canonical []string
	matcher   *Matcher
}

// NewDepartmentResolver builds a resolver over the standard department list.
// extraAliases (from config) is merged over the built-in alias map.
func NewDepartmentResolver(extraAliases map[string]string) *DepartmentResolver {
	aliases := make(map[string]string, len(departmentAliases)+len(extraAliases))
	for k, v := range departmentAliases {
		aliases[strings.ToLower(k)] = v
	}
	for k, v := range extraAliases {
		aliases[strings.ToLower(k)] = v
	}
	return &DepartmentResolver{
		aliases:   aliases,
		canonical: StandardDepartments,
		matcher:   NewMatcher(),
	}
}

// SetAliases replaces the config-provided aliases. Called on hot reload;
// not safe to race with Resolve, so the app layer swaps the whole resolver.
func (r *DepartmentResolver) SetAliases(extraAliases map[string]string) {
	aliases := make(map[string]string, len(departmentAliases)+len(extraAliases))
	for k, v := range departmentAliases {
		aliases[strings.ToLower(k)] = v
	}
	for k, v := range extraAliases {
		aliases[strings.ToLower(k)] = v
	}
	r.aliases = aliases
}

// ResolveExact resolves only by alias and canonical substring, without the
// phonetic stage. The rule classifier uses it so that arbitrary short
// utterances are not phonetically dragged into a department.
func (r *DepartmentResolver) ResolveExact(raw string) (string, bool) {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" {
		return "", false
	}
	for _, alias := range slices.Sorted(maps.Keys(r.aliases)) {
		if strings.Contains(input, alias) {
			return r.aliases[alias], true
		}
	}
	for _, dept := range r.canonical {
		dl := strings.ToLower(dept)
		if strings.Contains(input, dl) || strings.Contains(dl, input) {
			return dept, true
		}
	}
	return "", false
}

// Resolve normalises a spoken department reference to its canonical name.
func (r *DepartmentResolver) Resolve(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Result: Invalid, Message: "Department is required"}
	}
	input := strings.ToLower(strings.TrimSpace(raw))

	// Sorted scan keeps resolution deterministic when an utterance touches
	// more than one alias ("child has fever").
	for _, alias := range slices.Sorted(maps.Keys(r.aliases)) {
		if strings.Contains(input, alias) {
			return Outcome{Result: Valid, Value: r.aliases[alias]}
		}
	}

	for _, dept := range r.canonical {
		dl := strings.ToLower(dept)
		if strings.Contains(input, dl) || strings.Contains(dl, input) {
			return Outcome{Result: Valid, Value: dept}
		}
	}

	// Phonetic rescue for transcription noise ("cardiolagy", "pediatrix").
	if corrected, _, ok := r.matcher.Match(input, r.canonical); ok {
		return Outcome{Result: Valid, Value: corrected}
	}

	return Outcome{
		Result:  NeedsConfirmation,
		Value:   titleCase(raw),
		Message: "That is not a department I recognise. Did you mean one of our standard departments?",
	}
}
