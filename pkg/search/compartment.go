package search

// CompartmentType enumerates the compartments the service recognizes,
// matching the standard FHIR compartment definitions.
type CompartmentType string

const (
	CompartmentPatient       CompartmentType = "Patient"
	CompartmentEncounter     CompartmentType = "Encounter"
	CompartmentPractitioner  CompartmentType = "Practitioner"
	CompartmentRelatedPerson CompartmentType = "RelatedPerson"
	CompartmentDevice        CompartmentType = "Device"
)

// ParseCompartmentType matches s against the canonical spellings. Resource
// names are case-sensitive, so no folding is applied.
func ParseCompartmentType(s string) (CompartmentType, bool) {
	switch ct := CompartmentType(s); ct {
	case CompartmentPatient, CompartmentEncounter, CompartmentPractitioner,
		CompartmentRelatedPerson, CompartmentDevice:
		return ct, true
	}
	return "", false
}
