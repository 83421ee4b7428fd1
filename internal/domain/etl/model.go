package etl

import (
	"context"
	"fmt"
	"net/url"
)

// Resource is a raw FHIR resource as returned by the EHR server.
type Resource = map[string]any

// Record is a flat, Salesforce-shaped record: API field name to scalar value.
type Record = map[string]any

// EHRSource is the EHR-side client surface the pipeline consumes. FetchAll
// returns the unwrapped resources of every bundle entry across all pages.
type EHRSource interface {
	FetchAll(ctx context.Context, resourceType string, query url.Values) ([]Resource, error)
	FetchByID(ctx context.Context, resourceType, id string) (Resource, error)
}

// CRMConnection is the Salesforce-side surface the pipeline consumes.
// Create inserts one record and returns the assigned Salesforce ID.
type CRMConnection interface {
	Create(ctx context.Context, objectType string, record Record) (string, error)
	QueryAll(ctx context.Context, soql string) ([]Record, error)
}

// Salesforce object types targeted by the pipeline. The loader only ever
// submits records for this closed set.
const (
	ObjectServiceTerritory   = "ServiceTerritory"
	ObjectUser               = "User"
	ObjectAccount            = "Account"
	ObjectWorkType           = "WorkType"
	ObjectServiceResource    = "ServiceResource"
	ObjectServiceAppointment = "ServiceAppointment"
)

// Location is a normalized FHIR Location resource.
type Location struct {
	LocationID  string
	Name        string
	Phone       string
	Status      string
	AddressLine string
	City        string
	State       string
	ZipCode     string
}

// Provider is a normalized Practitioner joined with its PractitionerRole.
// LocationIDs holds the role's location references joined comma-separated.
type Provider struct {
	PractitionerID string
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	Specialty      string
	LocationIDs    string
}

// Patient is a normalized FHIR Patient resource.
type Patient struct {
	PatientID   string
	Name        string
	BirthDate   string
	Gender      string
	Phone       string
	Email       string
	AddressLine string
	City        string
	State       string
	PostalCode  string
}

// Appointment is a normalized FHIR Appointment resource. The three
// participant IDs are EHR-side identifiers resolved to Salesforce IDs
// during dependent-field resolution.
type Appointment struct {
	AppointmentID  string
	PatientID      string
	PractitionerID string
	LocationID     string
	WorkTypeLabel  string
	Status         string
	Start          string
	End            string
}

// LoadSuccess records one successfully created record.
type LoadSuccess struct {
	Index  int
	Record Record
	ID     string
}

// LoadFailure records one record the target system rejected.
type LoadFailure struct {
	Index  int
	Record Record
	Err    string
}

// LoadResult summarizes one load call. SuccessCount+FailureCount always
// equals Total, and the success and failure indices partition 0..Total-1
// in submission order.
type LoadResult struct {
	Object       string
	Total        int
	SuccessCount int
	FailureCount int
	Successes    []LoadSuccess
	Failures     []LoadFailure
}

// PractitionerDetail pairs the ServiceResource and Contact IDs that belong
// to one practitioner, joined on matching display name.
type PractitionerDetail struct {
	ServiceResourceID string
	ContactID         string
}

// IDMaps is a point-in-time snapshot of Salesforce-side identifier lookups.
// It is rebuilt, never mutated, because loading records changes the
// queryable state it reflects.
type IDMaps struct {
	PatientToAccount       map[string]string
	PractitionerToResource map[string]string
	ResourceNameToID       map[string]string
	PractitionerDetails    map[string]PractitionerDetail
	LocationToTerritory    map[string]string
	WorkTypeCodeToID       map[string]string
}

// WorkType is one entry of the static work-type catalog.
type WorkType struct {
	Code    string
	Display string
}

// DefaultWorkTypes is the fixed catalog of clinical service categories.
// It is reference data, not extracted from the EHR.
var DefaultWorkTypes = map[string]WorkType{
	"newpatient": {Code: "WT123", Display: "New Patient Consultation"},
	"followup":   {Code: "WT456", Display: "Follow-up Visit"},
	"annual":     {Code: "WT789", Display: "Annual Checkup"},
	"consult":    {Code: "WT012", Display: "Consultation"},
	"nurse":      {Code: "WT034", Display: "Nurse Visit"},
}

// ValidationError reports a record that cannot be normalized because a
// required structural field is missing or a value has no catalog match.
type ValidationError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
}
