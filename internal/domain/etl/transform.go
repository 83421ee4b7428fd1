package etl

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// appointmentStatuses translates FHIR appointment statuses to Salesforce
// ServiceAppointment statuses. Statuses with no entry pass through
// unchanged; downstream picklist validation decides their fate.
var appointmentStatuses = map[string]string{
	"booked":    "Scheduled",
	"cancelled": "Canceled",
	"fulfilled": "Completed",
}

// clinicTZ is the wall-clock timezone appointment times are expressed in.
var clinicTZ = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// TransformConfig carries the org-specific Salesforce identifiers the
// target records need. They are injected, never read from globals.
type TransformConfig struct {
	OperatingHoursID  string
	ProfileIDs        []string
	ResourceAccountID string
}

// TerritoryRecords shapes locations for the ServiceTerritory object.
func TerritoryRecords(locations []Location, cfg TransformConfig) []Record {
	records := make([]Record, 0, len(locations))
	for _, l := range locations {
		records = append(records, Record{
			"Name":               l.Name,
			"EHR_Location_Id__c": l.LocationID,
			"Street":             l.AddressLine,
			"City":               l.City,
			"State":              l.State,
			"PostalCode":         l.ZipCode,
			"OperatingHoursId":   cfg.OperatingHoursID,
		})
	}
	return records
}

// WorkTypeRecords shapes the static work-type catalog for the WorkType
// object, in stable code order.
func WorkTypeRecords(catalog map[string]WorkType) []Record {
	types := make([]WorkType, 0, len(catalog))
	for _, wt := range catalog {
		types = append(types, wt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Code < types[j].Code })

	records := make([]Record, 0, len(types))
	for _, wt := range types {
		records = append(records, Record{
			"Name":                wt.Display,
			"EstimatedDuration":   30,
			"DurationType":        "Minutes",
			"EHR_Work_Type_Id__c": wt.Code,
		})
	}
	return records
}

// UserRecords shapes providers for the User object. Profile IDs are
// assigned round-robin across the configured licenses.
func UserRecords(providers []Provider, cfg TransformConfig) []Record {
	records := make([]Record, 0, len(providers))
	for i, p := range providers {
		alias := userAlias(p.FirstName, p.LastName)
		records = append(records, Record{
			"FirstName":         p.FirstName,
			"LastName":          p.LastName,
			"Email":             p.Email,
			"ProfileId":         cfg.ProfileIDs[i%len(cfg.ProfileIDs)],
			"Username":          p.Email,
			"Alias":             alias,
			"CommunityNickname": alias,
			"IsActive":          true,
			"TimeZoneSidKey":    "America/New_York",
			"EmailEncodingKey":  "UTF-8",
			"LanguageLocaleKey": "en_US",
			"LocaleSidKey":      "en_US",
		})
	}
	return records
}

// userAlias builds the 5-character Salesforce alias: first initial plus up
// to four characters of the last name, lowercased, right-padded with 'x'.
func userAlias(first, last string) string {
	var b strings.Builder
	if r := []rune(first); len(r) > 0 {
		b.WriteRune(r[0])
	}
	if r := []rune(last); len(r) > 4 {
		b.WriteString(string(r[:4]))
	} else {
		b.WriteString(last)
	}
	alias := strings.ToLower(b.String())
	for len([]rune(alias)) < 5 {
		alias += "x"
	}
	return alias
}

// AccountRecords shapes patients for the Account object. The legal name is
// split into first token and remainder; gender is not carried over.
func AccountRecords(patients []Patient) []Record {
	records := make([]Record, 0, len(patients))
	for _, p := range patients {
		first, last := splitName(p.Name)
		records = append(records, Record{
			"Name":              p.Name,
			"First_Name__c":     first,
			"Last_Name__c":      last,
			"Date_of_Birth__c":  p.BirthDate,
			"EHR_Patient_Id__c": p.PatientID,
			"Address_Line__c":   p.AddressLine,
			"City__c":           p.City,
			"State__c":          p.State,
			"Postal_Code__c":    p.PostalCode,
			"Phone":             p.Phone,
			"Email__c":          p.Email,
		})
	}
	return records
}

func splitName(name string) (first, last string) {
	first, last, found := strings.Cut(name, " ")
	if !found {
		return name, ""
	}
	return first, last
}

// ResourceRecords shapes providers for the ServiceResource object. The
// record carries the provider's email so the wave-2 resolver can attach
// the RelatedRecordId of the User created in wave 1.
func ResourceRecords(providers []Provider, cfg TransformConfig) []Record {
	records := make([]Record, 0, len(providers))
	for _, p := range providers {
		records = append(records, Record{
			"Name":               p.FirstName + " " + p.LastName,
			"EHR_Resource_Id__c": p.PractitionerID,
			"Description":        p.Specialty,
			"IsActive":           true,
			"AccountId":          cfg.ResourceAccountID,
			"email":              p.Email,
		})
	}
	return records
}

// AppointmentRecord shapes one appointment for the ServiceAppointment
// object. Foreign keys stay as EHR identifiers under lowercase placeholder
// fields until dependent-field resolution. A missing participant reference
// or a work-type label absent from the catalog is a ValidationError;
// malformed timestamps become null Sched times instead.
func AppointmentRecord(a Appointment, catalog map[string]WorkType) (Record, error) {
	switch {
	case a.PatientID == "":
		return nil, &ValidationError{Resource: "Appointment", ID: a.AppointmentID, Reason: "missing patient reference"}
	case a.PractitionerID == "":
		return nil, &ValidationError{Resource: "Appointment", ID: a.AppointmentID, Reason: "missing practitioner reference"}
	case a.LocationID == "":
		return nil, &ValidationError{Resource: "Appointment", ID: a.AppointmentID, Reason: "missing location reference"}
	}

	code := ""
	for _, wt := range catalog {
		if wt.Display == a.WorkTypeLabel {
			code = wt.Code
			break
		}
	}
	if code == "" {
		return nil, &ValidationError{
			Resource: "Appointment",
			ID:       a.AppointmentID,
			Reason:   "unknown work type " + strconv.Quote(a.WorkTypeLabel),
		}
	}

	return Record{
		"EHR_Appointment_Id__c": a.AppointmentID,
		"Status":                translateStatus(a.Status),
		"SchedStartTime":        normalizeSchedTime(a.Start),
		"SchedEndTime":          normalizeSchedTime(a.End),
		"patient_id":            a.PatientID,
		"practitioner_id":       a.PractitionerID,
		"location_id":           a.LocationID,
		"work_type_code":        code,
	}, nil
}

func translateStatus(status string) string {
	if mapped, ok := appointmentStatuses[status]; ok {
		return mapped
	}
	return status
}

// schedTimeLayouts are the wall-clock shapes accepted after the UTC
// designator is stripped.
var schedTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// normalizeSchedTime re-interprets an EHR timestamp as clinic wall-clock
// time and renders the corresponding UTC instant. Unparseable input yields
// nil, which loads as a null Sched time.
func normalizeSchedTime(s string) any {
	s = strings.ReplaceAll(s, "Z", "")
	if s == "" {
		return nil
	}
	for _, layout := range schedTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, clinicTZ); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05") + "Z"
		}
	}
	return nil
}
