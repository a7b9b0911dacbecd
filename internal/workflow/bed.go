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

// Bed answers availability questions from the live bed list and routes
// allocation and admission requests to the admission desk. Allocation
// needs a doctor's approval, so the flow never creates one itself.
type Bed struct {
	client *his.Client
}

func NewBed(client *his.Client) *Bed {
	return &Bed{client: client}
}

func (b *Bed) Name() string { return "bed" }

func (b *Bed) SupportedIntents() []dialog.Intent {
	return []dialog.Intent{
		dialog.IntentCheckBedAvailability,
		dialog.IntentRequestBedAllocation,
		dialog.IntentRequestAdmission,
	}
}

func (b *Bed) Execute(ctx context.Context, wc Context, intent dialog.Intent, entities map[string]string) Result {
	if intent == dialog.IntentCheckBedAvailability {
		return b.availability(ctx, wc)
	}
	return b.requestAllocation(ctx, wc, entities)
}

func (b *Bed) availability(ctx context.Context, wc Context) Result {
	var calls []session.APICall

	_, err := b.client.BedAvailability(ctx)
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/beds/availability", Success: err == nil})
	if err != nil {
		slog.Error("bed availability check failed", "session_id", wc.SessionID, "error", err)
		return Result{
			Response:      "I couldn't check bed availability. Let me connect you with the admission desk.",
			RequiresHuman: true,
			APICalls:      calls,
			Err:           err,
		}
	}

	beds, err := b.client.Beds(ctx, "available")
	calls = append(calls, session.APICall{Method: "GET", Endpoint: "/beds", Success: err == nil})
	if err != nil {
		return Result{
			Response:      "I couldn't check bed availability. Let me connect you with the admission desk.",
			RequiresHuman: true,
			APICalls:      calls,
			Err:           err,
		}
	}

	var general, private, icu int
	for _, bed := range beds {
		switch bed.Type {
		case "general":
			general++
		case "private":
			private++
		case "icu":
			icu++
		}
	}

	parts := []string{fmt.Sprintf("We currently have %d beds available:", len(beds))}
	if general > 0 {
		parts = append(parts, fmt.Sprintf("%d general ward beds", general))
	}
	if private > 0 {
		parts = append(parts, fmt.Sprintf("%d private rooms", private))
	}
	if icu > 0 {
		parts = append(parts, fmt.Sprintf("%d ICU beds", icu))
	}

	return Result{
		Success:    true,
		Response:   strings.Join(parts, ". ") + ". Would you like to request a bed allocation?",
		IsComplete: true,
		APICalls:   calls,
	}
}

func (b *Bed) requestAllocation(ctx context.Context, wc Context, entities map[string]string) Result {
	patientID, calls := resolvePatientID(ctx, b.client, wc, entities)
	if patientID == "" {
		return Result{
			Success: true,
			Response: "For bed allocation, I'll need the patient's ID or phone number. " +
				"This requires admission approval from a doctor.",
			UpdatedState: map[string]any{"step": "need_patient"},
			APICalls:     calls,
		}
	}

	return Result{
		Success: true,
		Response: "Bed allocation requires doctor approval. Let me connect you with the admission desk " +
			"who can process this request with the attending physician.",
		RequiresHuman:   true,
		IsComplete:      true,
		UpdatedEntities: map[string]string{"patient_id": patientID},
		APICalls:        calls,
	}
}

func (b *Bed) Continue(ctx context.Context, wc Context, newEntities, allEntities map[string]string, isConfirmation, isDenial bool) Result {
	merged := mergedEntities(wc, allEntities, newEntities)
	if wc.step() == "need_patient" {
		return b.requestAllocation(ctx, wc, merged)
	}
	if isConfirmation {
		// "Would you like to request a bed allocation?" answered yes.
		return b.requestAllocation(ctx, wc, merged)
	}
	if isDenial {
		return Result{Success: true, Response: "Alright. Is there anything else I can help you with?", IsComplete: true}
	}
	return b.availability(ctx, wc)
}
