package organization

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Organization is the tenant boundary: it owns patients, records, and feature
// configuration.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Membership binds a user to an organization with a role. At most one
// membership exists per (user, organization) pair, enforced by a unique
// constraint, not just application logic.
type Membership struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	UserID         uuid.UUID    `db:"user_id" json:"user_id"`
	OrganizationID uuid.UUID    `db:"organization_id" json:"organization_id"`
	Role           auth.OrgRole `db:"role" json:"role"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

var (
	// ErrDuplicateMembership: the user already belongs to the organization.
	ErrDuplicateMembership = errors.New("user is already a member of this organization")

	// ErrCannotModifyOwner: OWNER memberships cannot be demoted or removed,
	// and no membership can be promoted to OWNER after creation. The only way
	// an OWNER membership comes into existence is organization creation.
	ErrCannotModifyOwner = errors.New("owner membership cannot be modified")

	// ErrMembershipNotFound: no membership with the given id in this organization.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrNameRequired rejects blank organization names.
	ErrNameRequired = errors.New("organization name is required")

	// ErrInvalidRole rejects role strings outside the known set.
	ErrInvalidRole = errors.New("unknown organization role")
)
