package salesforce

import "fmt"

// knownObjects is the closed set of sobject types this integration is
// allowed to write or query. Object names arrive as data, so membership is
// checked before any URL is built from them.
var knownObjects = map[string]struct{}{
	"Account":            {},
	"Contact":            {},
	"User":               {},
	"WorkType":           {},
	"ServiceTerritory":   {},
	"ServiceResource":    {},
	"ServiceAppointment": {},
}

// ValidateObjectType reports whether objectType belongs to the closed set
// of supported sobjects.
func ValidateObjectType(objectType string) error {
	if _, ok := knownObjects[objectType]; !ok {
		return fmt.Errorf("unsupported sobject type %q", objectType)
	}
	return nil
}
