package records

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("clinical document not found")

// ClinicalDocument is the record as callers see it: sensitive fields in the
// clear. At rest, Allergies, Conditions and Notes are ciphertext.
type ClinicalDocument struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	PatientUserID  uuid.UUID `json:"patient_user_id"`
	Title          string    `json:"title"`
	DocType        string    `json:"doc_type"`
	Allergies      string    `json:"allergies,omitempty"`
	Conditions     string    `json:"conditions,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CurrentVersion int       `json:"current_version"`
	CreatedBy      uuid.UUID `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DocumentVersion is one historical snapshot. Sensitive fields stay encrypted
// exactly as they were written; history is never re-keyed in place.
type DocumentVersion struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Version    int       `json:"version"`
	Title      string    `json:"title"`
	Allergies  string    `json:"-"`
	Conditions string    `json:"-"`
	Notes      string    `json:"-"`
	EditedBy   uuid.UUID `json:"edited_by"`
	CreatedAt  time.Time `json:"created_at"`
}
