package auditlog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	ListByOrg(ctx context.Context, organizationID uuid.UUID, action Action, limit, offset int) ([]*Entry, int, error)
}
