package his

import "strings"

// Patient is a patient record as the backend returns it. ID is the database
// id used in foreign keys; PatientID is the human-facing UHID quoted back to
// callers.
type Patient struct {
	ID          string `json:"_id"`
	PatientID   string `json:"patientId"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
}

// FullName joins the name parts for spoken responses.
func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// NewPatient is the creation payload for POST /patients.
type NewPatient struct {
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	Phone       string          `json:"phone"`
	DateOfBirth string          `json:"dateOfBirth"`
	Gender      string          `json:"gender"`
	Email       string          `json:"email,omitempty"`
	Address     *PatientAddress `json:"address,omitempty"`
}

type PatientAddress struct {
	Street string `json:"street"`
}

// Department is a hospital department.
type Department struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// DoctorProfile carries the doctor's displayable name.
type DoctorProfile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Doctor is a doctor as returned by the department listing. The name lives
// under a nested profile object.
type Doctor struct {
	ID      string        `json:"_id"`
	Profile DoctorProfile `json:"profile"`
}

// FullName joins the profile name parts.
func (d Doctor) FullName() string {
	return strings.TrimSpace(d.Profile.FirstName + " " + d.Profile.LastName)
}

// NewAppointment is the creation payload for POST /opd/appointments. Patient,
// Doctor and Department are database ids.
type NewAppointment struct {
	Patient        string `json:"patient"`
	Department     string `json:"department"`
	ScheduledDate  string `json:"scheduledDate"`
	Type           string `json:"type"`
	Doctor         string `json:"doctor,omitempty"`
	ChiefComplaint string `json:"chiefComplaint,omitempty"`
}

// Appointment is an OPD appointment record.
type Appointment struct {
	ID                string      `json:"_id"`
	AppointmentNumber string      `json:"appointmentNumber"`
	TokenNumber       int         `json:"tokenNumber"`
	Status            string      `json:"status"`
	Type              string      `json:"type"`
	ScheduledDate     string      `json:"scheduledDate"`
	ScheduledTime     string      `json:"scheduledTime"`
	Doctor            *Doctor     `json:"doctor,omitempty"`
	Department        *Department `json:"department,omitempty"`
}

// AppointmentFilter narrows GET /opd/appointments. Empty fields are omitted.
type AppointmentFilter struct {
	Patient string
	Status  string
	Date    string
}

// CheckinResult is the body of PUT /opd/appointments/{id}/checkin.
type CheckinResult struct {
	TokenNumber   int    `json:"tokenNumber"`
	QueuePosition int    `json:"queuePosition"`
	EstimatedWait string `json:"estimatedWait"`
}

// QueueEntry is one position in the live OPD queue.
type QueueEntry struct {
	TokenNumber int    `json:"tokenNumber"`
	Status      string `json:"status"`
	Department  string `json:"department"`
}

// Bed is a single bed with its ward type and occupancy status.
type Bed struct {
	ID     string `json:"_id"`
	Number string `json:"bedNumber"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Ward   string `json:"ward"`
}

// BedTypeAvailability is the per-type slice of the availability summary.
type BedTypeAvailability struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

// BedAvailability is the summary from GET /beds/availability, keyed by bed
// type (general, private, icu).
type BedAvailability map[string]BedTypeAvailability

// NewAdmission is the creation payload for POST /ipd/admissions.
type NewAdmission struct {
	Patient   string `json:"patient"`
	Bed       string `json:"bed,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Requested string `json:"requestedBy,omitempty"`
}

// Admission is an IPD admission record.
type Admission struct {
	ID      string `json:"_id"`
	Patient string `json:"patient"`
	Status  string `json:"status"`
}

// NewEmergencyCase is the creation payload for POST /emergency/cases.
// TriageLevel is always red for voice reports; triage happens on arrival.
type NewEmergencyCase struct {
	PatientName    string `json:"patientName"`
	ChiefComplaint string `json:"chiefComplaint"`
	TriageLevel    string `json:"triageLevel"`
	Source         string `json:"source"`
}

// EmergencyCase is a record in the emergency queue.
type EmergencyCase struct {
	ID             string `json:"_id"`
	PatientName    string `json:"patientName"`
	TriageLevel    string `json:"triageLevel"`
	ChiefComplaint string `json:"chiefComplaint"`
	Status         string `json:"status"`
}

// LabTest is a bookable test from the catalogue.
type LabTest struct {
	ID    string  `json:"_id"`
	Name  string  `json:"name"`
	Code  string  `json:"code"`
	Price float64 `json:"price"`
}

// LabOrder is a patient's lab order with its processing status.
type LabOrder struct {
	ID     string `json:"_id"`
	Test   string `json:"testName"`
	Status string `json:"status"`
	Date   string `json:"orderedAt"`
}

// Bill is one billing record for a patient.
type Bill struct {
	ID         string  `json:"_id"`
	BillNumber string  `json:"billNumber"`
	Total      float64 `json:"totalAmount"`
	Paid       float64 `json:"paidAmount"`
	Balance    float64 `json:"balanceAmount"`
	Status     string  `json:"status"`
}
