package auditlog

import (
	"time"

	"github.com/google/uuid"
)

// Action is the closed enumeration of privileged actions the platform audits.
type Action string

const (
	ActionCreateOrganization Action = "CREATE_ORGANIZATION"
	ActionInviteMember       Action = "INVITE_MEMBER"
	ActionUpdateMemberRole   Action = "UPDATE_MEMBER_ROLE"
	ActionRemoveMember       Action = "REMOVE_MEMBER"
	ActionEnableFeature      Action = "ENABLE_FEATURE"
	ActionDisableFeature     Action = "DISABLE_FEATURE"
	ActionCreateRecord       Action = "CREATE_RECORD"
	ActionUpdateRecord       Action = "UPDATE_RECORD"
	ActionDeleteRecord       Action = "DELETE_RECORD"
	ActionProposeConsent     Action = "PROPOSE_CONSENT"
	ActionGrantConsent       Action = "GRANT_CONSENT"
	ActionRejectConsent      Action = "REJECT_CONSENT"
	ActionLogin              Action = "LOGIN"
	ActionExportRecords      Action = "EXPORT_RECORDS"
)

var validActions = map[Action]bool{
	ActionCreateOrganization: true,
	ActionInviteMember:       true,
	ActionUpdateMemberRole:   true,
	ActionRemoveMember:       true,
	ActionEnableFeature:      true,
	ActionDisableFeature:     true,
	ActionCreateRecord:       true,
	ActionUpdateRecord:       true,
	ActionDeleteRecord:       true,
	ActionProposeConsent:     true,
	ActionGrantConsent:       true,
	ActionRejectConsent:      true,
	ActionLogin:              true,
	ActionExportRecords:      true,
}

func (a Action) Valid() bool {
	return validActions[a]
}

// Entry is one immutable audit record. Entries are append-only: the platform
// never updates or deletes them.
type Entry struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	UserID         *uuid.UUID     `db:"user_id" json:"user_id,omitempty"`
	OrganizationID *uuid.UUID     `db:"organization_id" json:"organization_id,omitempty"`
	Action         Action         `db:"action" json:"action"`
	EntityType     string         `db:"entity_type" json:"entity_type,omitempty"`
	EntityID       *uuid.UUID     `db:"entity_id" json:"entity_id,omitempty"`
	Details        map[string]any `db:"details" json:"details,omitempty"`
	IPAddress      string         `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
