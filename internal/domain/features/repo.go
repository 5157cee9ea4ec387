package features

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Get returns the flag row for (organization, key), or (nil, nil) when
	// the feature was never toggled.
	Get(ctx context.Context, organizationID uuid.UUID, key string) (*OrganizationFeature, error)
	// Upsert writes the row keyed on the unique (organization, key) pair.
	Upsert(ctx context.Context, f *OrganizationFeature) error
	ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]*OrganizationFeature, error)
}
