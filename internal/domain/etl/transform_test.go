package etl

import (
	"errors"
	"testing"
	"time"
)

func validAppointment() Appointment {
	return Appointment{
		AppointmentID:  "appt-1",
		PatientID:      "pat-1",
		PractitionerID: "prac-1",
		LocationID:     "loc-1",
		WorkTypeLabel:  "Follow-up Visit",
		Status:         "booked",
		Start:          "2025-09-26T09:30:00Z",
		End:            "2025-09-26T10:00:00Z",
	}
}

func TestTerritoryRecords(t *testing.T) {
	cfg := TransformConfig{OperatingHoursID: "0OH-test"}
	records := TerritoryRecords([]Location{{
		LocationID:  "loc-1",
		Name:        "South Miami Clinic",
		AddressLine: "12345 Sunset Drive",
		City:        "Miami",
		State:       "FL",
		ZipCode:     "33156",
	}}, cfg)

	r := records[0]
	if r["EHR_Location_Id__c"] != "loc-1" {
		t.Errorf("expected source id carried, got %v", r["EHR_Location_Id__c"])
	}
	if r["Street"] != "12345 Sunset Drive" || r["PostalCode"] != "33156" {
		t.Errorf("unexpected address fields: %v", r)
	}
	if r["OperatingHoursId"] != "0OH-test" {
		t.Errorf("expected configured operating hours id, got %v", r["OperatingHoursId"])
	}
}

func TestWorkTypeRecords(t *testing.T) {
	records := WorkTypeRecords(DefaultWorkTypes)
	if len(records) != 5 {
		t.Fatalf("expected 5 work types, got %d", len(records))
	}
	// Stable code order: WT012 first.
	if records[0]["EHR_Work_Type_Id__c"] != "WT012" || records[0]["Name"] != "Consultation" {
		t.Errorf("unexpected first work type: %v", records[0])
	}
	for _, r := range records {
		if r["EstimatedDuration"] != 30 || r["DurationType"] != "Minutes" {
			t.Errorf("unexpected duration fields: %v", r)
		}
	}
}

func TestUserRecords(t *testing.T) {
	cfg := TransformConfig{ProfileIDs: []string{"00e1", "00e2"}}
	providers := []Provider{
		{FirstName: "Sebastian", LastName: "Testing", Email: "stest@example.org.invalid"},
		{FirstName: "Ana", LastName: "Li", Email: "ali@example.org.invalid"},
		{FirstName: "Bob", LastName: "Smith", Email: "bsmith@example.org.invalid"},
	}
	records := UserRecords(providers, cfg)

	if records[0]["Alias"] != "stest" {
		t.Errorf("expected alias stest, got %v", records[0]["Alias"])
	}
	if records[1]["Alias"] != "alixx" {
		t.Errorf("expected short alias padded with x, got %v", records[1]["Alias"])
	}
	if records[0]["Username"] != records[0]["Email"] {
		t.Error("expected username to mirror email")
	}
	if records[0]["CommunityNickname"] != records[0]["Alias"] {
		t.Error("expected community nickname to mirror alias")
	}

	// Round-robin profile assignment wraps.
	if records[0]["ProfileId"] != "00e1" || records[1]["ProfileId"] != "00e2" || records[2]["ProfileId"] != "00e1" {
		t.Errorf("unexpected profile rotation: %v %v %v",
			records[0]["ProfileId"], records[1]["ProfileId"], records[2]["ProfileId"])
	}
	if records[0]["TimeZoneSidKey"] != "America/New_York" || records[0]["LocaleSidKey"] != "en_US" {
		t.Errorf("unexpected locale defaults: %v", records[0])
	}
}

func TestAccountRecords_NameSplit(t *testing.T) {
	records := AccountRecords([]Patient{
		{PatientID: "pat-1", Name: "Maria Del Carmen", Gender: "female"},
		{PatientID: "pat-2", Name: "Cher"},
	})

	if records[0]["First_Name__c"] != "Maria" || records[0]["Last_Name__c"] != "Del Carmen" {
		t.Errorf("expected first-token split, got %v / %v",
			records[0]["First_Name__c"], records[0]["Last_Name__c"])
	}
	if records[1]["First_Name__c"] != "Cher" || records[1]["Last_Name__c"] != "" {
		t.Errorf("expected single-token name handling, got %v", records[1])
	}
	if _, ok := records[0]["Gender"]; ok {
		t.Error("gender must not be carried to the account record")
	}
}

func TestResourceRecords(t *testing.T) {
	cfg := TransformConfig{ResourceAccountID: "001-test"}
	records := ResourceRecords([]Provider{{
		PractitionerID: "prac-1",
		FirstName:      "Sebastian",
		LastName:       "Testing",
		Email:          "stest@example.org.invalid",
		Specialty:      "General Practice Physician",
	}}, cfg)

	r := records[0]
	if r["Name"] != "Sebastian Testing" {
		t.Errorf("unexpected name: %v", r["Name"])
	}
	if r["EHR_Resource_Id__c"] != "prac-1" || r["Description"] != "General Practice Physician" {
		t.Errorf("unexpected fields: %v", r)
	}
	if r["AccountId"] != "001-test" {
		t.Errorf("expected configured account id, got %v", r["AccountId"])
	}
	if r["email"] != "stest@example.org.invalid" {
		t.Error("expected email placeholder for wave-2 resolution")
	}
}

func TestAppointmentRecord_StatusTranslation(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"booked", "Scheduled"},
		{"cancelled", "Canceled"},
		{"fulfilled", "Completed"},
		{"no-show", "no-show"}, // unrecognized passes through unchanged
	}
	for _, tc := range cases {
		a := validAppointment()
		a.Status = tc.in
		rec, err := AppointmentRecord(a, DefaultWorkTypes)
		if err != nil {
			t.Fatalf("unexpected error for status %q: %v", tc.in, err)
		}
		if rec["Status"] != tc.want {
			t.Errorf("status %q: expected %q, got %v", tc.in, tc.want, rec["Status"])
		}
	}
}

func TestAppointmentRecord_MissingReferences(t *testing.T) {
	for _, clear := range []func(*Appointment){
		func(a *Appointment) { a.PatientID = "" },
		func(a *Appointment) { a.PractitionerID = "" },
		func(a *Appointment) { a.LocationID = "" },
	} {
		a := validAppointment()
		clear(&a)
		_, err := AppointmentRecord(a, DefaultWorkTypes)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}
}

func TestAppointmentRecord_UnknownWorkType(t *testing.T) {
	a := validAppointment()
	a.WorkTypeLabel = "Telehealth Intake"
	_, err := AppointmentRecord(a, DefaultWorkTypes)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown work type, got %v", err)
	}
}

func TestAppointmentRecord_WorkTypeCode(t *testing.T) {
	rec, err := AppointmentRecord(validAppointment(), DefaultWorkTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["work_type_code"] != "WT456" {
		t.Errorf("expected label resolved to WT456, got %v", rec["work_type_code"])
	}
	if rec["EHR_Appointment_Id__c"] != "appt-1" {
		t.Errorf("expected source id carried, got %v", rec["EHR_Appointment_Id__c"])
	}
}

func TestNormalizeSchedTime(t *testing.T) {
	// EDT: wall clock 09:30 in New York is 13:30 UTC.
	if got := normalizeSchedTime("2025-09-26T09:30:00Z"); got != "2025-09-26T13:30:00Z" {
		t.Errorf("expected 2025-09-26T13:30:00Z, got %v", got)
	}
	// EST: wall clock 09:00 is 14:00 UTC.
	if got := normalizeSchedTime("2025-01-15T09:00:00Z"); got != "2025-01-15T14:00:00Z" {
		t.Errorf("expected 2025-01-15T14:00:00Z, got %v", got)
	}
	// Malformed input becomes a null value, not an error.
	if got := normalizeSchedTime("not-a-time"); got != nil {
		t.Errorf("expected nil for malformed input, got %v", got)
	}
	if got := normalizeSchedTime(""); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestSchedTimeRoundTrip(t *testing.T) {
	// Parsing the displayed UTC time back and converting to New York local
	// time must recover the original source wall clock.
	source := "2025-06-03T11:15:00Z"
	got := normalizeSchedTime(source)
	displayed, ok := got.(string)
	if !ok {
		t.Fatalf("expected string, got %T", got)
	}

	parsed, err := time.Parse("2006-01-02T15:04:05Z", displayed)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	local := parsed.UTC().In(clinicTZ).Format("2006-01-02T15:04:05")
	if local+"Z" != source {
		t.Errorf("round trip mismatch: source %s, recovered %s", source, local)
	}
}
