// Package his is the typed client for the Hospital Information System REST
// backend. Every call goes through the receptionist RBAC policy, a circuit
// breaker, and the shared retry budget; authentication is a cached bearer
// token refreshed by a single flight.
package his

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/karunya-health/vaani/internal/config"
	"github.com/karunya-health/vaani/internal/resilience"
)

const defaultTimeout = 30 * time.Second

// Client talks to the HIS backend with the service account. It is safe for
// concurrent use.
type Client struct {
	baseURL  string
	username string
	password string

	httpc   *http.Client
	tokens  *tokenSource
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryPolicy

	mu     sync.RWMutex
	policy *Enforcer
}

// Option customises a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mostly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithRetryPolicy replaces the retry budget.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithBreaker replaces the circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New builds a [Client] from cfg. The breaker opens after five consecutive
// failures and probes again after a minute; the first successful probe
// closes it.
func New(cfg config.HISConfig, opts ...Option) (*Client, error) {
	policy, err := NewEnforcer(cfg.AllowedEndpoints, cfg.DeniedEndpoints)
	if err != nil {
		return nil, fmt.Errorf("rbac policy: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpc:    &http.Client{Timeout: timeout},
		policy:   policy,
		retry:    resilience.HISRetry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "his",
			MaxFailures:  5,
			ResetTimeout: time.Minute,
			HalfOpenMax:  1,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(cfg.TokenTTL, c.login)
	return c, nil
}

// ReplacePolicy swaps the RBAC rules, used by config hot reload.
func (c *Client) ReplacePolicy(allowed, denied []string) error {
	policy, err := NewEnforcer(allowed, denied)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.policy = policy
	c.mu.Unlock()
	slog.Info("his rbac policy replaced")
	return nil
}

func (c *Client) currentPolicy() *Enforcer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.policy
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// login posts the service-account credentials and returns the bearer token.
// The token field name differs between backend versions.
func (c *Client) login(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    c.username,
		"password": c.password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", transportError("/auth/login", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("/auth/login", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			Kind:     kindForStatus(resp.StatusCode),
			Status:   resp.StatusCode,
			Endpoint: "/auth/login",
			Message:  "authentication failed",
		}
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		Token       string `json:"token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &APIError{Kind: FailureMalformed, Endpoint: "/auth/login", Message: err.Error()}
	}
	token := payload.AccessToken
	if token == "" {
		token = payload.Token
	}
	if token == "" {
		return "", &APIError{Kind: FailureMalformed, Endpoint: "/auth/login", Message: "no token in login response"}
	}
	return token, nil
}

// do runs one RBAC-checked, breaker-guarded, retried call and unwraps the
// data envelope into out. A nil out discards the data.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !c.currentPolicy().Allowed(method, path) {
		return &APIError{Kind: FailureForbidden, Endpoint: path, Message: "blocked by access policy"}
	}

	_, err := resilience.Retry(ctx, c.retry, func() (struct{}, error) {
		err := c.breaker.Execute(func() error {
			return c.attempt(ctx, method, path, query, body, out)
		})
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return struct{}{}, resilience.Permanent(err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return struct{}{}, resilience.Permanent(err)
		}
		return struct{}{}, err
	})
	return err
}

// attempt performs a single authenticated request. On a 401 the cached token
// is dropped and the request is repeated once with a fresh login; a second
// 401 is surfaced to the caller.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	status, raw, err := c.send(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(token)
		if token, err = c.tokens.Token(ctx); err != nil {
			return err
		}
		if status, raw, err = c.send(ctx, method, path, query, body, token); err != nil {
			return err
		}
	}

	slog.Debug("his call completed", "method", method, "endpoint", path, "status", status)
	return decodeEnvelope(status, path, raw, out)
}

// send issues the HTTP request and slurps the body.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, token string) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, transportError(path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, transportError(path, err)
	}
	return resp.StatusCode, raw, nil
}

// Ping verifies backend connectivity for health reporting. The department
// list is the cheapest authenticated read the policy allows.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/departments", nil, nil, nil)
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// SearchPatients searches across UHID, name and phone with one query string.
func (c *Client) SearchPatients(ctx context.Context, query string) ([]Patient, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var patients []Patient
	err := c.do(ctx, http.MethodGet, "/patients/search", url.Values{"query": {query}}, nil, &patients)
	return patients, err
}

// GetPatient fetches one patient by database id.
func (c *Client) GetPatient(ctx context.Context, id string) (Patient, error) {
	var p Patient
	err := c.do(ctx, http.MethodGet, "/patients/"+id, nil, nil, &p)
	return p, err
}

// CreatePatient registers a new patient.
func (c *Client) CreatePatient(ctx context.Context, np NewPatient) (Patient, error) {
	var p Patient
	err := c.do(ctx, http.MethodPost, "/patients", nil, np, &p)
	return p, err
}

// Departments lists all departments.
func (c *Client) Departments(ctx context.Context) ([]Department, error) {
	var depts []Department
	err := c.do(ctx, http.MethodGet, "/departments", nil, nil, &depts)
	return depts, err
}

// DepartmentDoctors lists the doctors of one department.
func (c *Client) DepartmentDoctors(ctx context.Context, departmentID string) ([]Doctor, error) {
	var doctors []Doctor
	err := c.do(ctx, http.MethodGet, "/departments/"+departmentID+"/doctors", nil, nil, &doctors)
	return doctors, err
}

// CreateAppointment books an OPD appointment.
func (c *Client) CreateAppointment(ctx context.Context, na NewAppointment) (Appointment, error) {
	var a Appointment
	err := c.do(ctx, http.MethodPost, "/opd/appointments", nil, na, &a)
	return a, err
}

// Appointments lists appointments matching the filter.
func (c *Client) Appointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	query := url.Values{}
	if f.Patient != "" {
		query.Set("patient", f.Patient)
	}
	if f.Status != "" {
		query.Set("status", f.Status)
	}
	if f.Date != "" {
		query.Set("date", f.Date)
	}
	var appts []Appointment
	err := c.do(ctx, http.MethodGet, "/opd/appointments", query, nil, &appts)
	return appts, err
}

// CheckInAppointment checks a patient in for an appointment and returns
// their token and queue position.
func (c *Client) CheckInAppointment(ctx context.Context, appointmentID string) (CheckinResult, error) {
	var r CheckinResult
	err := c.do(ctx, http.MethodPut, "/opd/appointments/"+appointmentID+"/checkin", nil, nil, &r)
	return r, err
}

// OPDQueue returns the live outpatient queue.
func (c *Client) OPDQueue(ctx context.Context) ([]QueueEntry, error) {
	var q []QueueEntry
	err := c.do(ctx, http.MethodGet, "/opd/queue", nil, nil, &q)
	return q, err
}

// BedAvailability returns the per-type bed summary.
func (c *Client) BedAvailability(ctx context.Context) (BedAvailability, error) {
	var avail BedAvailability
	err := c.do(ctx, http.MethodGet, "/beds/availability", nil, nil, &avail)
	return avail, err
}

// Beds lists beds, optionally filtered by status.
func (c *Client) Beds(ctx context.Context, status string) ([]Bed, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	var beds []Bed
	err := c.do(ctx, http.MethodGet, "/beds", query, nil, &beds)
	return beds, err
}

// AllocateBed assigns a bed to a patient.
func (c *Client) AllocateBed(ctx context.Context, patientID, bedID string) (Bed, error) {
	var b Bed
	err := c.do(ctx, http.MethodPost, "/beds/allocate", nil, map[string]string{
		"patient": patientID,
		"bed":     bedID,
	}, &b)
	return b, err
}

// CreateAdmission files an IPD admission request.
func (c *Client) CreateAdmission(ctx context.Context, na NewAdmission) (Admission, error) {
	var a Admission
	err := c.do(ctx, http.MethodPost, "/ipd/admissions", nil, na, &a)
	return a, err
}

// AdmissionRequests lists pending admission requests.
func (c *Client) AdmissionRequests(ctx context.Context) ([]Admission, error) {
	var reqs []Admission
	err := c.do(ctx, http.MethodGet, "/ipd/requests", nil, nil, &reqs)
	return reqs, err
}

// CreateEmergencyCase raises an emergency case for the triage team.
func (c *Client) CreateEmergencyCase(ctx context.Context, nc NewEmergencyCase) (EmergencyCase, error) {
	var ec EmergencyCase
	err := c.do(ctx, http.MethodPost, "/emergency/cases", nil, nc, &ec)
	return ec, err
}

// EmergencyQueue returns the emergency queue sorted by triage level.
func (c *Client) EmergencyQueue(ctx context.Context) ([]EmergencyCase, error) {
	var q []EmergencyCase
	err := c.do(ctx, http.MethodGet, "/emergency/queue", nil, nil, &q)
	return q, err
}

// LabTests lists the bookable lab test catalogue.
func (c *Client) LabTests(ctx context.Context) ([]LabTest, error) {
	var tests []LabTest
	err := c.do(ctx, http.MethodGet, "/lab/tests", nil, nil, &tests)
	return tests, err
}

// LabOrders lists a patient's lab orders.
func (c *Client) LabOrders(ctx context.Context, patientID string) ([]LabOrder, error) {
	query := url.Values{}
	if patientID != "" {
		query.Set("patient", patientID)
	}
	var orders []LabOrder
	err := c.do(ctx, http.MethodGet, "/lab/orders", query, nil, &orders)
	return orders, err
}

// PatientBills lists a patient's bills.
func (c *Client) PatientBills(ctx context.Context, patientID string) ([]Bill, error) {
	var bills []Bill
	err := c.do(ctx, http.MethodGet, "/billing/patient/"+patientID, nil, nil, &bills)
	return bills, err
}
