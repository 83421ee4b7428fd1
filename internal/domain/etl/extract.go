package etl

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ExtractLocations fetches and normalizes all Location resources managed by
// the organization.
func ExtractLocations(ctx context.Context, src EHRSource, orgID string) ([]Location, error) {
	resources, err := src.FetchAll(ctx, "Location", url.Values{"organization": {orgID}})
	if err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}

	locations := make([]Location, 0, len(resources))
	for _, res := range resources {
		address := mapField(res, "address")
		locations = append(locations, Location{
			LocationID:  strField(res, "id"),
			Name:        strField(res, "name"),
			Phone:       telecomValue(res, "phone"),
			Status:      strField(res, "status"),
			AddressLine: strings.Join(strSlice(address, "line"), " "),
			City:        strField(address, "city"),
			State:       strField(address, "state"),
			ZipCode:     strField(address, "postalCode"),
		})
	}
	return locations, nil
}

// ExtractProviders fetches all PractitionerRole resources for the
// organization and joins each with its referenced Practitioner, producing
// one Provider per role. Roles without a practitioner reference are skipped.
func ExtractProviders(ctx context.Context, src EHRSource, orgID string) ([]Provider, error) {
	roles, err := src.FetchAll(ctx, "PractitionerRole", url.Values{
		"organization": {"Organization/" + orgID},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch practitioner roles: %w", err)
	}

	providers := make([]Provider, 0, len(roles))
	for _, role := range roles {
		ref := strField(mapField(role, "practitioner"), "reference")
		if ref == "" {
			continue
		}
		practitionerID := refID(ref)

		practitioner, err := src.FetchByID(ctx, "Practitioner", practitionerID)
		if err != nil {
			return nil, fmt.Errorf("fetch practitioner %s: %w", practitionerID, err)
		}

		name := firstMap(practitioner, "name")
		var locationIDs []string
		for _, loc := range anySlice(role, "location") {
			if m, ok := loc.(map[string]any); ok {
				locationIDs = append(locationIDs, refID(strField(m, "reference")))
			}
		}

		providers = append(providers, Provider{
			PractitionerID: practitionerID,
			FirstName:      strings.Join(strSlice(name, "given"), " "),
			LastName:       strField(name, "family"),
			Phone:          telecomValue(practitioner, "phone"),
			Email:          telecomValue(practitioner, "email"),
			Specialty:      specialtyDisplay(role),
			LocationIDs:    strings.Join(locationIDs, ", "),
		})
	}
	return providers, nil
}

// ExtractPatients fetches and normalizes all Patient resources managed by
// the organization, across every page.
func ExtractPatients(ctx context.Context, src EHRSource, orgID string) ([]Patient, error) {
	resources, err := src.FetchAll(ctx, "Patient", url.Values{"organization": {orgID}})
	if err != nil {
		return nil, fmt.Errorf("fetch patients: %w", err)
	}

	patients := make([]Patient, 0, len(resources))
	for _, res := range resources {
		name := firstMap(res, "name")
		fullName := strings.TrimSpace(
			strings.Join(strSlice(name, "given"), " ") + " " + strField(name, "family"))

		address := firstMap(res, "address")
		patients = append(patients, Patient{
			PatientID:   strField(res, "id"),
			Name:        fullName,
			BirthDate:   strField(res, "birthDate"),
			Gender:      strField(res, "gender"),
			Phone:       telecomValue(res, "phone"),
			Email:       telecomValue(res, "email"),
			AddressLine: strings.Join(strSlice(address, "line"), " "),
			City:        strField(address, "city"),
			State:       strField(address, "state"),
			PostalCode:  strField(address, "postalCode"),
		})
	}
	return patients, nil
}

// ExtractAppointments fetches and normalizes all Appointment resources for
// patients of the organization. Participant actors are classified by
// reference prefix; the work-type label is taken from the first serviceType
// coding display, falling back to the concept text.
func ExtractAppointments(ctx context.Context, src EHRSource, orgID string) ([]Appointment, error) {
	resources, err := src.FetchAll(ctx, "Appointment", url.Values{
		"patient.organization": {"Organization/" + orgID},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch appointments: %w", err)
	}

	appointments := make([]Appointment, 0, len(resources))
	for _, res := range resources {
		appt := Appointment{
			AppointmentID: strField(res, "id"),
			Status:        strField(res, "status"),
			Start:         strField(res, "start"),
			End:           strField(res, "end"),
		}

		for _, p := range anySlice(res, "participant") {
			m, ok := p.(map[string]any)
			if !ok {
				continue
			}
			ref := strField(mapField(m, "actor"), "reference")
			switch {
			case strings.HasPrefix(ref, "Practitioner/"):
				appt.PractitionerID = refID(ref)
			case strings.HasPrefix(ref, "Patient/"):
				appt.PatientID = refID(ref)
			case strings.HasPrefix(ref, "Location/"):
				appt.LocationID = refID(ref)
			}
		}

		if st := firstMap(res, "serviceType"); st != nil {
			if coding := firstMap(st, "coding"); coding != nil {
				appt.WorkTypeLabel = strField(coding, "display")
			}
			if appt.WorkTypeLabel == "" {
				appt.WorkTypeLabel = strField(st, "text")
			}
		}

		appointments = append(appointments, appt)
	}
	return appointments, nil
}

// -- FHIR map navigation helpers --

func strField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func anySlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

func strSlice(m map[string]any, key string) []string {
	var out []string
	for _, v := range anySlice(m, key) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func firstMap(m map[string]any, key string) map[string]any {
	for _, v := range anySlice(m, key) {
		if e, ok := v.(map[string]any); ok {
			return e
		}
	}
	return nil
}

// telecomValue returns the value of the first telecom entry with the given
// system, or "" when none exists.
func telecomValue(res Resource, system string) string {
	for _, t := range anySlice(res, "telecom") {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if strField(m, "system") == system {
			return strField(m, "value")
		}
	}
	return ""
}

// specialtyDisplay reads the first specialty coding display from a
// PractitionerRole, falling back to the concept text.
func specialtyDisplay(role Resource) string {
	spec := firstMap(role, "specialty")
	if spec == nil {
		return ""
	}
	if coding := firstMap(spec, "coding"); coding != nil {
		if d := strField(coding, "display"); d != "" {
			return d
		}
	}
	return strField(spec, "text")
}

// refID returns the final path segment of a FHIR reference such as
// "Practitioner/123".
func refID(ref string) string {
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
