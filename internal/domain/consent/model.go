package consent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Lifetime of a proposal before its token stops working.
const RequestTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidToken covers unknown tokens and tokens already consumed by a
	// prior resolution. The two cases are deliberately indistinguishable.
	ErrInvalidToken = errors.New("invalid consent token")

	ErrExpired     = errors.New("consent request expired")
	ErrNotYours    = errors.New("consent request is addressed to a different user")
	ErrLinkExists  = errors.New("family link already exists")
	ErrPendingOpen = errors.New("a pending consent request already exists for this pair")
	ErrNotFound    = errors.New("consent request not found")
	ErrSelfConsent = errors.New("cannot propose consent to yourself")

	// ErrAlreadyResolved reports a resolution that lost the race against a
	// concurrent one. The first recorded outcome stands.
	ErrAlreadyResolved = errors.New("consent request already resolved")
)

// ConsentRequest is a single-use invitation from an account owner to another
// user, asking to link the two as family. Token is nulled on first
// resolution; Granted and RespondedAt stay nil until the subject answers.
type ConsentRequest struct {
	ID            uuid.UUID  `json:"id"`
	OwnerUserID   uuid.UUID  `json:"owner_user_id"`
	SubjectUserID uuid.UUID  `json:"subject_user_id"`
	Token         *string    `json:"-"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	Granted       *bool      `json:"granted,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Pending reports whether the request is still waiting for an answer.
func (r *ConsentRequest) Pending() bool {
	return r.RespondedAt == nil
}

// FamilyLink is the durable relationship a granted request produces.
type FamilyLink struct {
	ID           uuid.UUID `json:"id"`
	OwnerUserID  uuid.UUID `json:"owner_user_id"`
	MemberUserID uuid.UUID `json:"member_user_id"`
	ConsentID    uuid.UUID `json:"consent_id"`
	CreatedAt    time.Time `json:"created_at"`
}
