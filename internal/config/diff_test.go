package config

import "testing"

func TestDiffNoChanges(t *testing.T) {
	a := validConfig()
	b := validConfig()
	if d := Diff(a, b); d.Any() {
		t.Errorf("Diff of identical configs reported changes: %+v", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Server.LogLevel = LogDebug

	d := Diff(a, b)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiffSafety(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Safety.IntentOverrides = map[string]float64{"CANCEL_APPOINTMENT": 0.9}

	if d := Diff(a, b); !d.SafetyChanged {
		t.Error("SafetyChanged = false, want true")
	}
}

func TestDiffAliases(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Hospital.DepartmentAliases = map[string]string{"tummy": "Gastroenterology"}

	if d := Diff(a, b); !d.AliasesChanged {
		t.Error("AliasesChanged = false, want true")
	}
}

func TestDiffRBAC(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.HIS.DeniedEndpoints = []string{"* /admin/*"}

	d := Diff(a, b)
	if !d.RBACChanged {
		t.Error("RBACChanged = false, want true")
	}
	if d.SafetyChanged || d.AliasesChanged || d.LogLevelChanged {
		t.Errorf("unrelated changes reported: %+v", d)
	}
}
