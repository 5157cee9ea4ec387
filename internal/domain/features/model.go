package features

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Feature keys known to the platform. Toggles for unknown keys are rejected.
const (
	KeyReportSharing         = "report_sharing"
	KeyFollowUps             = "follow_ups"
	KeyFamilyManagement      = "family_management"
	KeyPredictiveMaintenance = "predictive_maintenance"
	KeyLabResults            = "lab_results"
	KeyEquipmentTelemetry    = "equipment_telemetry"
	KeyAIInterpretation      = "ai_interpretation"
)

// Feature describes one toggleable capability.
type Feature struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Default bool   `json:"default"`
}

// registry is ordered so list endpoints render stably.
var registry = []Feature{
	{Key: KeyReportSharing, Label: "Report sharing", Default: true},
	{Key: KeyFollowUps, Label: "Follow-ups", Default: true},
	{Key: KeyFamilyManagement, Label: "Family management", Default: true},
	{Key: KeyPredictiveMaintenance, Label: "Predictive maintenance", Default: false},
	{Key: KeyLabResults, Label: "Lab results", Default: false},
	{Key: KeyEquipmentTelemetry, Label: "Equipment telemetry", Default: false},
	{Key: KeyAIInterpretation, Label: "AI interpretation", Default: false},
}

// Registry returns all known features in stable order.
func Registry() []Feature {
	out := make([]Feature, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the feature for key, if known.
func Lookup(key string) (Feature, bool) {
	for _, f := range registry {
		if f.Key == key {
			return f, true
		}
	}
	return Feature{}, false
}

// DefaultEnabled returns the keys seeded as enabled for new organizations.
func DefaultEnabled() []string {
	var keys []string
	for _, f := range registry {
		if f.Default {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// OrganizationFeature is one per-organization flag row with provenance.
// Absence of a row is equivalent to disabled.
type OrganizationFeature struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	FeatureKey     string         `db:"feature_key" json:"feature_key"`
	Enabled        bool           `db:"enabled" json:"enabled"`
	EnabledAt      *time.Time     `db:"enabled_at" json:"enabled_at,omitempty"`
	EnabledBy      *uuid.UUID     `db:"enabled_by" json:"enabled_by,omitempty"`
	DisabledAt     *time.Time     `db:"disabled_at" json:"disabled_at,omitempty"`
	Metadata       map[string]any `db:"metadata" json:"metadata,omitempty"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Access distinguishes reading a feature's existing data from creating new
// data under it. Reads stay available after a feature is disabled: a flag
// flip must never make existing records look lost; only creation is blocked.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// DisabledError reports a write blocked by a disabled feature. It carries the
// human-readable label so callers can render an actionable message; the
// organization's capability state is not a secret from its own members.
type DisabledError struct {
	Key   string
	Label string
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("feature %q is disabled for this organization", e.Label)
}
