package his

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// PortalClient calls the patient-portal slice of the backend with the
// caller's own bearer token instead of the service account. The portal
// scopes every response to the authenticated patient, so no RBAC policy of
// ours applies beyond the /patient prefix itself.
type PortalClient struct {
	parent *Client
	token  string
}

// Portal returns a client bound to the caller's token.
func (c *Client) Portal(token string) *PortalClient {
	return &PortalClient{parent: c, token: token}
}

// do mirrors Client.do but always sends the caller token and never re-auths;
// an expired portal token is the caller's problem to renew.
func (p *PortalClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	full := "/patient" + path
	if !p.parent.currentPolicy().Allowed(method, full) {
		return &APIError{Kind: FailureForbidden, Endpoint: full, Message: "blocked by access policy"}
	}

	status, raw, err := p.parent.send(ctx, method, full, query, body, p.token)
	if err != nil {
		return err
	}
	return decodeEnvelope(status, full, raw, out)
}

// decodeEnvelope unwraps the uniform response wrapper shared by the service
// and portal APIs.
func decodeEnvelope(status int, endpoint string, raw []byte, out any) error {
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return &APIError{Kind: FailureMalformed, Status: status, Endpoint: endpoint, Message: err.Error()}
		}
	}
	if status >= 400 {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{Kind: kindForStatus(status), Status: status, Endpoint: endpoint, Message: msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Kind: FailureMalformed, Status: status, Endpoint: endpoint, Message: err.Error()}
	}
	return nil
}

// PortalDoctor is a doctor as the portal lists them, with a flat name.
type PortalDoctor struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName joins the name parts.
func (d PortalDoctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// Slot is one bookable time slot for a doctor on a date.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// PortalBooking is the creation payload for the portal booking endpoint.
type PortalBooking struct {
	DoctorID     string `json:"doctorId"`
	DepartmentID string `json:"departmentId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Notes        string `json:"notes,omitempty"`
}

// PortalAppointment is an appointment as the portal returns it.
type PortalAppointment struct {
	ID                string        `json:"_id"`
	AppointmentNumber string        `json:"appointmentNumber"`
	Status            string        `json:"status"`
	ScheduledDate     string        `json:"scheduledDate"`
	ScheduledTime     string        `json:"scheduledTime"`
	Doctor            *PortalDoctor `json:"doctor,omitempty"`
}

// Departments lists departments open for portal booking.
func (p *PortalClient) Departments(ctx context.Context) ([]Department, error) {
	var depts []Department
	err := p.do(ctx, http.MethodGet, "/appointments/departments", nil, nil, &depts)
	return depts, err
}

// Doctors lists a department's doctors.
func (p *PortalClient) Doctors(ctx context.Context, departmentID string) ([]PortalDoctor, error) {
	var doctors []PortalDoctor
	err := p.do(ctx, http.MethodGet, "/appointments/doctors", url.Values{"departmentId": {departmentID}}, nil, &doctors)
	return doctors, err
}

// Slots lists a doctor's slots on a date; callers filter on Available.
func (p *PortalClient) Slots(ctx context.Context, doctorID, date string) ([]Slot, error) {
	var slots []Slot
	err := p.do(ctx, http.MethodGet, "/appointments/slots", url.Values{
		"doctorId": {doctorID},
		"date":     {date},
	}, nil, &slots)
	return slots, err
}

// Book creates an appointment for the authenticated patient.
func (p *PortalClient) Book(ctx context.Context, b PortalBooking) (PortalAppointment, error) {
	var a PortalAppointment
	err := p.do(ctx, http.MethodPost, "/appointments", nil, b, &a)
	return a, err
}

// Appointments lists the authenticated patient's appointments.
func (p *PortalClient) Appointments(ctx context.Context) ([]PortalAppointment, error) {
	var appts []PortalAppointment
	err := p.do(ctx, http.MethodGet, "/appointments", nil, nil, &appts)
	return appts, err
}
