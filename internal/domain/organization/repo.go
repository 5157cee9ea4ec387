package organization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)

	CreateMembership(ctx context.Context, m *Membership) error
	// Lookup is a point read on the unique (user, organization) pair.
	// A missing membership is (nil, nil).
	Lookup(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error)
	GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error)
	UpdateMembershipRole(ctx context.Context, m *Membership) error
	DeleteMembership(ctx context.Context, id uuid.UUID) error

	// Both listings are ordered by creation time ascending so "first
	// organization" has a stable meaning (the default active organization at
	// login).
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error)
	ListForOrg(ctx context.Context, organizationID uuid.UUID) ([]*Membership, error)
}
