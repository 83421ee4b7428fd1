package etl

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	accountQuery = `SELECT Id, EHR_Patient_Id__c FROM Account WHERE EHR_Patient_Id__c != null`

	resourceQuery = `SELECT Id, EHR_Resource_Id__c, Name FROM ServiceResource ` +
		`WHERE EHR_Resource_Id__c != NULL AND IsActive = True`

	contactQuery = `SELECT Id, Name FROM Contact`

	territoryQuery = `SELECT Id, EHR_Location_Id__c FROM ServiceTerritory ` +
		`WHERE EHR_Location_Id__c != NULL AND IsActive = True`

	workTypeQuery = `SELECT Id, EHR_Work_Type_Id__c FROM WorkType WHERE EHR_Work_Type_Id__c != NULL`
)

// BuildIDMaps queries the CRM and assembles a fresh snapshot of
// EHR-identifier to Salesforce-identifier lookups. The practitioner
// details map joins ServiceResource and Contact rows on display name;
// resources without a matching contact are logged and left out, so any
// appointment needing them is dropped downstream.
func BuildIDMaps(ctx context.Context, crm CRMConnection, logger zerolog.Logger) (*IDMaps, error) {
	maps := &IDMaps{
		PatientToAccount:       make(map[string]string),
		PractitionerToResource: make(map[string]string),
		ResourceNameToID:       make(map[string]string),
		PractitionerDetails:    make(map[string]PractitionerDetail),
		LocationToTerritory:    make(map[string]string),
		WorkTypeCodeToID:       make(map[string]string),
	}

	accounts, err := crm.QueryAll(ctx, accountQuery)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	for _, rec := range accounts {
		maps.PatientToAccount[recString(rec, "EHR_Patient_Id__c")] = recString(rec, "Id")
	}

	resources, err := crm.QueryAll(ctx, resourceQuery)
	if err != nil {
		return nil, fmt.Errorf("query service resources: %w", err)
	}
	for _, rec := range resources {
		maps.PractitionerToResource[recString(rec, "EHR_Resource_Id__c")] = recString(rec, "Id")
		maps.ResourceNameToID[recString(rec, "Name")] = recString(rec, "Id")
	}

	contacts, err := crm.QueryAll(ctx, contactQuery)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	contactByName := make(map[string]string, len(contacts))
	for _, rec := range contacts {
		contactByName[recString(rec, "Name")] = recString(rec, "Id")
	}

	for _, rec := range resources {
		name := recString(rec, "Name")
		contactID, ok := contactByName[name]
		if !ok {
			logger.Warn().Str("resource", name).Msg("no matching contact for service resource")
			continue
		}
		maps.PractitionerDetails[recString(rec, "EHR_Resource_Id__c")] = PractitionerDetail{
			ServiceResourceID: recString(rec, "Id"),
			ContactID:         contactID,
		}
	}

	territories, err := crm.QueryAll(ctx, territoryQuery)
	if err != nil {
		return nil, fmt.Errorf("query service territories: %w", err)
	}
	for _, rec := range territories {
		maps.LocationToTerritory[recString(rec, "EHR_Location_Id__c")] = recString(rec, "Id")
	}

	workTypes, err := crm.QueryAll(ctx, workTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("query work types: %w", err)
	}
	for _, rec := range workTypes {
		maps.WorkTypeCodeToID[recString(rec, "EHR_Work_Type_Id__c")] = recString(rec, "Id")
	}

	logger.Debug().
		Int("accounts", len(maps.PatientToAccount)).
		Int("resources", len(maps.PractitionerToResource)).
		Int("territories", len(maps.LocationToTerritory)).
		Int("work_types", len(maps.WorkTypeCodeToID)).
		Msg("identifier maps built")
	return maps, nil
}

func recString(rec Record, field string) string {
	s, _ := rec[field].(string)
	return s
}
