package records

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *ClinicalDocument) error
	// Get returns (nil, nil) when the document does not exist in the org.
	Get(ctx context.Context, organizationID, id uuid.UUID) (*ClinicalDocument, error)
	// Update rewrites the mutable columns and bumps current_version.
	Update(ctx context.Context, d *ClinicalDocument) error
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
	ListByOrg(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*ClinicalDocument, int, error)

	CreateVersion(ctx context.Context, v *DocumentVersion) error
	ListVersions(ctx context.Context, documentID uuid.UUID) ([]*DocumentVersion, error)
}
