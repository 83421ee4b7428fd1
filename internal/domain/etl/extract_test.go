package etl

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"testing"
)

// fakeSource serves canned FHIR resources keyed by resource type, and
// single resources keyed by "Type/id".
type fakeSource struct {
	resources map[string][]Resource
	byID      map[string]Resource
}

func (f *fakeSource) FetchAll(_ context.Context, resourceType string, _ url.Values) ([]Resource, error) {
	return f.resources[resourceType], nil
}

func (f *fakeSource) FetchByID(_ context.Context, resourceType, id string) (Resource, error) {
	res, ok := f.byID[resourceType+"/"+id]
	if !ok {
		return nil, fmt.Errorf("%s/%s not found", resourceType, id)
	}
	return res, nil
}

func locationResource(id, name string) Resource {
	return Resource{
		"id":     id,
		"name":   name,
		"status": "active",
		"telecom": []any{
			map[string]any{"system": "email", "value": "clinic@example.org.invalid"},
			map[string]any{"system": "phone", "value": "305-111-2233"},
		},
		"address": map[string]any{
			"line":       []any{"12345 Sunset Drive", "Suite 4"},
			"city":       "Miami",
			"state":      "FL",
			"postalCode": "33156",
		},
	}
}

func practitionerResource(id, given, family, email string) Resource {
	return Resource{
		"id": id,
		"name": []any{
			map[string]any{"family": family, "given": []any{given}},
		},
		"telecom": []any{
			map[string]any{"system": "phone", "value": "305-123-4567"},
			map[string]any{"system": "email", "value": email},
		},
	}
}

func roleResource(practitionerID string, locationIDs ...string) Resource {
	var locations []any
	for _, id := range locationIDs {
		locations = append(locations, map[string]any{"reference": "Location/" + id})
	}
	return Resource{
		"practitioner": map[string]any{"reference": "Practitioner/" + practitionerID},
		"location":     locations,
		"specialty": []any{
			map[string]any{
				"coding": []any{
					map[string]any{"code": "208D00000X", "display": "General Practice Physician"},
				},
				"text": "General Practice",
			},
		},
	}
}

func patientResource(id, given, family string) Resource {
	return Resource{
		"id":        id,
		"gender":    "female",
		"birthDate": "1984-03-12",
		"name": []any{
			map[string]any{"family": family, "given": []any{given}},
		},
		"telecom": []any{
			map[string]any{"system": "phone", "value": "786-555-0101"},
			map[string]any{"system": "email", "value": "patient@example.com.invalid"},
		},
		"address": []any{
			map[string]any{
				"line":       []any{"99 Ocean Ave"},
				"city":       "Miami Beach",
				"state":      "FL",
				"postalCode": "33140",
			},
		},
	}
}

func appointmentResource(id, patientID, practitionerID, locationID, label, status string) Resource {
	return Resource{
		"id":     id,
		"status": status,
		"start":  "2025-09-26T09:30:00Z",
		"end":    "2025-09-26T10:00:00Z",
		"serviceType": []any{
			map[string]any{
				"coding": []any{map[string]any{"code": "WT456", "display": label}},
				"text":   label,
			},
		},
		"participant": []any{
			map[string]any{"actor": map[string]any{"reference": "Patient/" + patientID}, "status": "accepted"},
			map[string]any{"actor": map[string]any{"reference": "Practitioner/" + practitionerID}, "status": "accepted"},
			map[string]any{"actor": map[string]any{"reference": "Location/" + locationID}, "status": "accepted"},
		},
	}
}

func TestExtractLocations(t *testing.T) {
	src := &fakeSource{resources: map[string][]Resource{
		"Location": {
			locationResource("loc-1", "South Miami Clinic"),
			{"id": "loc-2", "name": "Bare Clinic"},
		},
	}}

	locations, err := ExtractLocations(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locations))
	}

	want := Location{
		LocationID:  "loc-1",
		Name:        "South Miami Clinic",
		Phone:       "305-111-2233",
		Status:      "active",
		AddressLine: "12345 Sunset Drive Suite 4",
		City:        "Miami",
		State:       "FL",
		ZipCode:     "33156",
	}
	if locations[0] != want {
		t.Errorf("unexpected location: %+v", locations[0])
	}

	// Optional fields absent map to empty, never error.
	if locations[1].Phone != "" || locations[1].City != "" {
		t.Errorf("expected empty optional fields, got %+v", locations[1])
	}
}

func TestExtractProviders(t *testing.T) {
	src := &fakeSource{
		resources: map[string][]Resource{
			"PractitionerRole": {
				roleResource("prac-1", "loc-1", "loc-2"),
				{"specialty": []any{}}, // no practitioner reference
			},
		},
		byID: map[string]Resource{
			"Practitioner/prac-1": practitionerResource("prac-1", "Sebastian", "Testing", "stest@example.org.invalid"),
		},
	}

	providers, err := ExtractProviders(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider (role without reference skipped), got %d", len(providers))
	}

	p := providers[0]
	if p.FirstName != "Sebastian" || p.LastName != "Testing" {
		t.Errorf("unexpected name: %+v", p)
	}
	if p.Email != "stest@example.org.invalid" {
		t.Errorf("unexpected email: %s", p.Email)
	}
	if p.Specialty != "General Practice Physician" {
		t.Errorf("unexpected specialty: %s", p.Specialty)
	}
	if p.LocationIDs != "loc-1, loc-2" {
		t.Errorf("expected comma-joined location ids, got %q", p.LocationIDs)
	}
}

func TestExtractProviders_SpecialtyTextFallback(t *testing.T) {
	role := roleResource("prac-1", "loc-1")
	role["specialty"] = []any{map[string]any{"text": "Cardiology"}}

	src := &fakeSource{
		resources: map[string][]Resource{"PractitionerRole": {role}},
		byID: map[string]Resource{
			"Practitioner/prac-1": practitionerResource("prac-1", "Ana", "Reyes", "areyes@example.org.invalid"),
		},
	}

	providers, err := ExtractProviders(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providers[0].Specialty != "Cardiology" {
		t.Errorf("expected text fallback, got %q", providers[0].Specialty)
	}
}

func TestExtractPatients(t *testing.T) {
	src := &fakeSource{resources: map[string][]Resource{
		"Patient": {patientResource("pat-1", "Maria", "Gomez")},
	}}

	patients, err := ExtractPatients(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := patients[0]
	if p.Name != "Maria Gomez" {
		t.Errorf("expected joined name, got %q", p.Name)
	}
	if p.Phone != "786-555-0101" || p.Email != "patient@example.com.invalid" {
		t.Errorf("unexpected telecom: %+v", p)
	}
	if p.AddressLine != "99 Ocean Ave" || p.PostalCode != "33140" {
		t.Errorf("unexpected address: %+v", p)
	}
}

func TestExtractAppointments(t *testing.T) {
	src := &fakeSource{resources: map[string][]Resource{
		"Appointment": {
			appointmentResource("appt-1", "pat-1", "prac-1", "loc-1", "Follow-up Visit", "booked"),
		},
	}}

	appointments, err := ExtractAppointments(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := appointments[0]
	if a.PatientID != "pat-1" || a.PractitionerID != "prac-1" || a.LocationID != "loc-1" {
		t.Errorf("unexpected participants: %+v", a)
	}
	if a.WorkTypeLabel != "Follow-up Visit" {
		t.Errorf("unexpected work type label: %q", a.WorkTypeLabel)
	}
	if a.Status != "booked" || a.Start != "2025-09-26T09:30:00Z" {
		t.Errorf("unexpected status/start: %+v", a)
	}
}

func TestExtractAppointments_LabelTextFallback(t *testing.T) {
	res := appointmentResource("appt-1", "pat-1", "prac-1", "loc-1", "", "booked")
	res["serviceType"] = []any{map[string]any{"text": "Nurse Visit"}}
	src := &fakeSource{resources: map[string][]Resource{"Appointment": {res}}}

	appointments, err := ExtractAppointments(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appointments[0].WorkTypeLabel != "Nurse Visit" {
		t.Errorf("expected text fallback, got %q", appointments[0].WorkTypeLabel)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	src := &fakeSource{resources: map[string][]Resource{
		"Location": {locationResource("loc-1", "South Miami Clinic")},
	}}

	first, err := ExtractLocations(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ExtractLocations(context.Background(), src, "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical output on repeated extraction")
	}
}
