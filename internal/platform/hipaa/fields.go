package hipaa

// sensitiveFieldSets maps an entity type to the field names whose values must
// never be stored or transmitted in plaintext. This is a static contract:
// adding a new entity type to the platform requires declaring its sensitive
// fields here. Fields listed here can never back an equality or substring
// filter in storage (encryption is non-deterministic), so anything searchable
// must stay out of these sets.
var sensitiveFieldSets = map[string][]string{
	"patient": {
		"allergies",
		"medical_conditions",
		"notes",
	},
	"clinical_document": {
		"allergies",
		"conditions",
		"notes",
	},
	"lab_result": {
		"value",
		"recommended_action",
		"notes",
	},
	"equipment_telemetry": {
		"operator_notes",
	},
}

// SensitiveFields returns the sensitive field names declared for the given
// entity type. Unknown entity types have no sensitive fields.
func SensitiveFields(entityType string) []string {
	return sensitiveFieldSets[entityType]
}

// SensitiveEntityTypes returns the entity types with a declared field set.
func SensitiveEntityTypes() []string {
	types := make([]string, 0, len(sensitiveFieldSets))
	for t := range sensitiveFieldSets {
		types = append(types, t)
	}
	return types
}

// IsSensitive reports whether the named field of an entity type is declared
// sensitive.
func IsSensitive(entityType, field string) bool {
	for _, f := range sensitiveFieldSets[entityType] {
		if f == field {
			return true
		}
	}
	return false
}
