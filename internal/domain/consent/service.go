package consent

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/platform/db"
)

type Auditor interface {
	Record(ctx context.Context, e auditlog.Entry)
}

type Service struct {
	repo  Repository
	tx    db.Transactor
	audit Auditor
	now   func() time.Time
}

func NewService(repo Repository, tx db.Transactor, audit Auditor) *Service {
	return &Service{repo: repo, tx: tx, audit: audit, now: time.Now}
}

// newToken returns 256 bits of randomness in URL-safe base64, fit for a
// bearer link in an email.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate consent token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Propose opens a consent request from owner to subject. At most one pending
// request per pair; an existing family link makes a new request pointless.
func (s *Service) Propose(ctx context.Context, ownerUserID, subjectUserID uuid.UUID, ipAddress string) (*ConsentRequest, error) {
	if ownerUserID == subjectUserID {
		return nil, ErrSelfConsent
	}

	linked, err := s.repo.LinkExists(ctx, ownerUserID, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("check family link: %w", err)
	}
	if linked {
		return nil, ErrLinkExists
	}

	pending, err := s.repo.HasPending(ctx, ownerUserID, subjectUserID)
	if err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return nil, ErrPendingOpen
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	cr := &ConsentRequest{
		OwnerUserID:   ownerUserID,
		SubjectUserID: subjectUserID,
		Token:         &token,
		ExpiresAt:     s.now().UTC().Add(RequestTTL),
	}
	if err := s.repo.CreateRequest(ctx, cr); err != nil {
		return nil, fmt.Errorf("create consent request: %w", err)
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:     &ownerUserID,
		Action:     auditlog.ActionProposeConsent,
		EntityType: "consent_request",
		EntityID:   &cr.ID,
		Details:    map[string]any{"subject_user_id": subjectUserID.String()},
		IPAddress:  ipAddress,
	})
	return cr, nil
}

// ResolveByToken answers a request located by its bearer token. A consumed
// token no longer resolves to a row, so replaying a used link reads the same
// as a forged one.
func (s *Service) ResolveByToken(ctx context.Context, resolverUserID uuid.UUID, token string, grant bool, ipAddress string) (*ConsentRequest, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	cr, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("lookup consent token: %w", err)
	}
	if cr == nil {
		return nil, ErrInvalidToken
	}
	return s.resolve(ctx, resolverUserID, cr, grant, ipAddress)
}

// ResolveByID answers a request located by id. Unlike the token path this is
// idempotent: resolving an already-answered request returns the recorded
// outcome without changing anything.
func (s *Service) ResolveByID(ctx context.Context, resolverUserID, id uuid.UUID, grant bool, ipAddress string) (*ConsentRequest, error) {
	cr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup consent request: %w", err)
	}
	if cr == nil {
		return nil, ErrNotFound
	}
	return s.resolve(ctx, resolverUserID, cr, grant, ipAddress)
}

func (s *Service) resolve(ctx context.Context, resolverUserID uuid.UUID, cr *ConsentRequest, grant bool, ipAddress string) (*ConsentRequest, error) {
	if resolverUserID != cr.SubjectUserID {
		return nil, ErrNotYours
	}
	// Expiry wins over everything, including a previously recorded answer.
	if s.now().After(cr.ExpiresAt) {
		return nil, ErrExpired
	}
	if !cr.Pending() {
		return cr, nil
	}

	now := s.now().UTC()
	cr.RespondedAt = &now
	cr.Granted = &grant

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.MarkResolved(ctx, cr); err != nil {
			return fmt.Errorf("mark resolved: %w", err)
		}
		if !grant {
			return nil
		}
		link := &FamilyLink{
			OwnerUserID:  cr.OwnerUserID,
			MemberUserID: cr.SubjectUserID,
			ConsentID:    cr.ID,
		}
		if err := s.repo.CreateLink(ctx, link); err != nil {
			return fmt.Errorf("create family link: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyResolved) {
		// A concurrent resolution won; return its outcome, same as resolving
		// an already-answered request.
		current, gerr := s.repo.GetByID(ctx, cr.ID)
		if gerr != nil {
			return nil, fmt.Errorf("reload resolved request: %w", gerr)
		}
		if current == nil {
			return nil, ErrNotFound
		}
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	action := auditlog.ActionGrantConsent
	if !grant {
		action = auditlog.ActionRejectConsent
	}
	s.audit.Record(ctx, auditlog.Entry{
		UserID:     &resolverUserID,
		Action:     action,
		EntityType: "consent_request",
		EntityID:   &cr.ID,
		Details:    map[string]any{"owner_user_id": cr.OwnerUserID.String()},
		IPAddress:  ipAddress,
	})
	return cr, nil
}

// ListForUser returns requests where the user is owner or subject, newest
// first. Tokens never travel through this path.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*ConsentRequest, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) ListLinks(ctx context.Context, userID uuid.UUID) ([]*FamilyLink, error) {
	return s.repo.ListLinksForUser(ctx, userID)
}
