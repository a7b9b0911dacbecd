package his

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// defaultAllowed mirrors the receptionist role in the HIS RBAC model. The
// agent can read and create front-desk records but never touches clinical
// orders or user administration.
var defaultAllowed = []string{
	"POST /auth/login",
	"GET /patients/*",
	"POST /patients",
	"PUT /patients/*",
	"GET /departments",
	"GET /departments/*",
	"POST /opd/appointments",
	"GET /opd/appointments",
	"GET /opd/appointments/*",
	"PUT /opd/appointments/*",
	"DELETE /opd/appointments/*",
	"GET /opd/queue",
	"GET /beds",
	"GET /beds/availability",
	"POST /beds/allocate",
	"POST /ipd/admissions",
	"GET /ipd/requests",
	"POST /emergency/cases",
	"GET /emergency/queue",
	"GET /emergency/cases/*",
	"GET /lab/tests",
	"GET /lab/orders",
	"GET /lab/orders/*",
	"GET /billing/patient/*",
	"GET /patient/appointments",
	"GET /patient/appointments/*",
	"POST /patient/appointments",
}

// defaultDenied is checked before the allowlist, so a later config mistake in
// the allow rules cannot re-open these.
var defaultDenied = []string{
	"DELETE /patients/*",
	"POST /lab/orders",
	"PUT /lab/orders/*",
	"POST /users",
	"PUT /users/*",
	"DELETE /users/*",
}

type rule struct {
	raw string
	re  *regexp.Regexp
}

// Enforcer decides whether the agent may call a backend endpoint. Deny rules
// win over allow rules; anything matching neither list is denied.
type Enforcer struct {
	allowed []rule
	denied  []rule
}

// NewEnforcer compiles the rule lists. Empty lists fall back to the built-in
// receptionist policy.
func NewEnforcer(allowed, denied []string) (*Enforcer, error) {
	if len(allowed) == 0 {
		allowed = defaultAllowed
	}
	if len(denied) == 0 {
		denied = defaultDenied
	}

	e := &Enforcer{}
	var err error
	if e.allowed, err = compileRules(allowed); err != nil {
		return nil, fmt.Errorf("allow rules: %w", err)
	}
	if e.denied, err = compileRules(denied); err != nil {
		return nil, fmt.Errorf("deny rules: %w", err)
	}
	return e, nil
}

func compileRules(patterns []string) ([]rule, error) {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule{raw: p, re: re})
	}
	return rules, nil
}

// compilePattern turns "METHOD /path/*" into an anchored regexp. The method
// may itself be "*". A "*" in the path matches any run of characters,
// including slashes, which is what lets "DELETE /patients/*" cover nested
// resources.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok || method == "" || path == "" {
		return nil, fmt.Errorf("pattern %q is not %q", pattern, "METHOD /path")
	}

	var b strings.Builder
	b.WriteString("^")
	if method == "*" {
		b.WriteString(`[A-Z]+`)
	} else {
		b.WriteString(regexp.QuoteMeta(strings.ToUpper(method)))
	}
	b.WriteString(" ")
	for i, part := range strings.Split(path, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Allowed reports whether method+path may be called. Violations are logged as
// policy violations so the audit trail records every blocked attempt.
func (e *Enforcer) Allowed(method, path string) bool {
	probe := strings.ToUpper(method) + " " + path

	for _, r := range e.denied {
		if r.re.MatchString(probe) {
			slog.Warn("policy_violation: endpoint denied",
				"method", method, "endpoint", path, "rule", r.raw)
			return false
		}
	}
	for _, r := range e.allowed {
		if r.re.MatchString(probe) {
			return true
		}
	}
	slog.Warn("policy_violation: endpoint not in allowlist",
		"method", method, "endpoint", path)
	return false
}
