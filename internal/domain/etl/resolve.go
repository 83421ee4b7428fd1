package etl

// ResolveResources attaches the wave-1 User IDs to ServiceResource records
// by email. Records whose user failed to insert have no mapping and are
// dropped; the second return value is the drop count.
func ResolveResources(records []Record, userIDByEmail map[string]string) ([]Record, int) {
	resolved := make([]Record, 0, len(records))
	for _, rec := range records {
		email, _ := rec["email"].(string)
		userID, ok := userIDByEmail[email]
		if !ok {
			continue
		}
		resolved = append(resolved, Record{
			"Name":               rec["Name"],
			"EHR_Resource_Id__c": rec["EHR_Resource_Id__c"],
			"Description":        rec["Description"],
			"IsActive":           rec["IsActive"],
			"AccountId":          rec["AccountId"],
			"RelatedRecordId":    userID,
		})
	}
	return resolved, len(records) - len(resolved)
}

// ResolveAppointments replaces the EHR-identifier placeholders on
// ServiceAppointment records with Salesforce IDs. Account, service
// resource, contact, and work type are required: a record missing any of
// them is dropped. The territory is not required, so an appointment whose
// location never mapped still loads with a null ServiceTerritoryId.
func ResolveAppointments(records []Record, maps *IDMaps) ([]Record, int) {
	resolved := make([]Record, 0, len(records))
	for _, rec := range records {
		patientID, _ := rec["patient_id"].(string)
		practitionerID, _ := rec["practitioner_id"].(string)
		locationID, _ := rec["location_id"].(string)
		workTypeCode, _ := rec["work_type_code"].(string)

		accountID, haveAccount := maps.PatientToAccount[patientID]
		detail, haveDetail := maps.PractitionerDetails[practitionerID]
		workTypeID, haveWorkType := maps.WorkTypeCodeToID[workTypeCode]
		if !haveAccount || !haveDetail || !haveWorkType {
			continue
		}

		out := Record{
			"EHR_Appointment_Id__c": rec["EHR_Appointment_Id__c"],
			"ParentRecordId":        accountID,
			"Service_Resource__c":   detail.ServiceResourceID,
			"ContactId":             detail.ContactID,
			"WorkTypeId":            workTypeID,
			"SchedStartTime":        rec["SchedStartTime"],
			"SchedEndTime":          rec["SchedEndTime"],
			"Status":                rec["Status"],
		}
		if territoryID, ok := maps.LocationToTerritory[locationID]; ok {
			out["ServiceTerritoryId"] = territoryID
		} else {
			out["ServiceTerritoryId"] = nil
		}
		resolved = append(resolved, out)
	}
	return resolved, len(records) - len(resolved)
}
