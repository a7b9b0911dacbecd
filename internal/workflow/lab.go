package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/session"
)

// Lab handles lab test booking requests. Tests need a doctor's
// prescription, so the flow confirms the test against the catalogue and
// hands the caller to the lab reception rather than placing an order.
type Lab struct {
	client *his.Client
}

func NewLab(client *his.Client) *Lab {
	return &Lab{client: client}
}

func (l *Lab) Name() string { return "lab" }

func (l *Lab) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{dialog.IntentBookLabTest}
}

func (l *Lab) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	patientID, calls := resolvePatientID(ctx, l.client, wc, entities)
	if patientID == "" {
		return Result{
			Success:      true,
			Response:     "To book a lab test, please provide your patient ID or registered phone number.",
			UpdatedState: map[string]any{"step": "need_patient"},
			APICalls:     calls,
		}
	}

	tests, err := l.client.LabTests(ctx)
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/lab/tests", Success: err == nil})
	if err != nil {
		slog.Warn("lab catalogue lookup failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Success:       true,
			Response:      "Let me connect you with our lab reception for assistance with test booking.",
			RequiresHuman: true,
			IsComplete:    true,
			APICalls:      calls,
		}
	}

	if name := wc.pick(entities, "test_name"); name != "" {
		if matched, ok := matchLabTest(tests, name); ok {
			return Result{
				Success: true,
				Response: fmt.Sprintf("Lab test booking for %s requires a doctor's prescription. "+
					"Please visit the lab with your prescription, or I can connect you with the lab reception.", matched.Name),
				RequiresHuman:   true,
				IsComplete:      true,
				UpdatedEntities: map[string]string{"patient_id": patientID},
				APICalls:        calls,
			}
		}
	}

	names := make([]string, 0, 5)
	for _, t := range tests {
		names = append(names, t.Name)
		if len(names) == 5 {
			break
		}
	}
	return Result{
		Success: true,
		Response: fmt.Sprintf("Our lab offers various tests including: %s. Lab tests require a doctor's prescription. "+
			"Would you like me to connect you with the lab reception?", strings.Join(names, ", ")),
		RequiresHuman:   true,
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (l *Lab) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	return l.Execute(ctx, wc, dialog.IntentBookLabTest, mergedEntities(wc, allEntities, newEntities))
}

// matchLabTest finds a catalogue test whose name contains the spoken name.
func matchLabTest(tests []his.LabTest, name string) (his.LabTest, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, t := range tests {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			return t, true
		}
	}
	return his.LabTest{}, false
}
