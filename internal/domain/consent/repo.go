package consent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists consent requests and the family links they produce.
// Get methods return (nil, nil) when no row matches.
type Repository interface {
	CreateRequest(ctx context.Context, r *ConsentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error)
	GetByToken(ctx context.Context, token string) (*ConsentRequest, error)
	// HasPending reports an unanswered request between owner and subject.
	HasPending(ctx context.Context, ownerUserID, subjectUserID uuid.UUID) (bool, error)
	// MarkResolved stamps the outcome and nulls the token in one statement.
	// Only a pending request takes an outcome; ErrAlreadyResolved when a
	// concurrent resolution got there first.
	MarkResolved(ctx context.Context, r *ConsentRequest) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*ConsentRequest, error)

	CreateLink(ctx context.Context, l *FamilyLink) error
	LinkExists(ctx context.Context, ownerUserID, memberUserID uuid.UUID) (bool, error)
	ListLinksForUser(ctx context.Context, userID uuid.UUID) ([]*FamilyLink, error)
}
