package organization

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// FeatureSeeder writes the default-enabled feature rows for a new
// organization. Implemented by the features service; called inside the
// creation transaction so an organization never exists half-seeded.
type FeatureSeeder interface {
	SeedDefaults(ctx context.Context, organizationID, actorUserID uuid.UUID) error
}

// Auditor appends privileged-action records best-effort.
type Auditor interface {
	Record(ctx context.Context, e auditlog.Entry)
}

type Service struct {
	repo   Repository
	tx     db.Transactor
	seeder FeatureSeeder
	audit  Auditor
}

func NewService(repo Repository, tx db.Transactor, seeder FeatureSeeder, audit Auditor) *Service {
	return &Service{repo: repo, tx: tx, seeder: seeder, audit: audit}
}

// Create provisions a new organization. The organization row, the creator's
// OWNER membership, and the default feature rows are written in one
// transaction; the audit entry follows the commit.
func (s *Service) Create(ctx context.Context, name string, creator *auth.Identity, ipAddress string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	org := &Organization{Name: name, CreatedBy: creator.UserID}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateOrganization(ctx, org); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		owner := &Membership{
			UserID:         creator.UserID,
			OrganizationID: org.ID,
			Role:           auth.OrgRoleOwner,
		}
		if err := s.repo.CreateMembership(ctx, owner); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		if err := s.seeder.SeedDefaults(ctx, org.ID, creator.UserID); err != nil {
			return fmt.Errorf("seed default features: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &creator.UserID,
		OrganizationID: &org.ID,
		Action:         auditlog.ActionCreateOrganization,
		EntityType:     "organization",
		EntityID:       &org.ID,
		Details:        map[string]any{"name": org.Name},
		IPAddress:      ipAddress,
	})
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// InviteMember adds a user to an organization. OWNER is reserved for the
// organization creator and can never be granted here.
func (s *Service) InviteMember(ctx context.Context, actor *auth.AuthContext, userID uuid.UUID, role auth.OrgRole, ipAddress string) (*Membership, error) {
	if !role.Valid() || role == auth.OrgRoleOwner {
		return nil, fmt.Errorf("%w: %q cannot be granted by invitation", ErrInvalidRole, role)
	}

	existing, err := s.repo.Lookup(ctx, userID, actor.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("check existing membership: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateMembership
	}

	m := &Membership{
		UserID:         userID,
		OrganizationID: actor.OrganizationID,
		Role:           role,
	}
	if err := s.repo.CreateMembership(ctx, m); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actor.UserID,
		OrganizationID: &actor.OrganizationID,
		Action:         auditlog.ActionInviteMember,
		EntityType:     "membership",
		EntityID:       &m.ID,
		Details:        map[string]any{"invited_user_id": userID, "role": role},
		IPAddress:      ipAddress,
	})
	return m, nil
}

// UpdateMemberRole changes a member's role. Targeting an OWNER membership, or
// promoting any membership to OWNER, rejects with ErrCannotModifyOwner.
func (s *Service) UpdateMemberRole(ctx context.Context, actor *auth.AuthContext, membershipID uuid.UUID, role auth.OrgRole, ipAddress string) (*Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	m, err := s.repo.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != actor.OrganizationID {
		return nil, ErrMembershipNotFound
	}
	if m.Role == auth.OrgRoleOwner || role == auth.OrgRoleOwner {
		return nil, ErrCannotModifyOwner
	}

	previous := m.Role
	m.Role = role
	if err := s.repo.UpdateMembershipRole(ctx, m); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actor.UserID,
		OrganizationID: &actor.OrganizationID,
		Action:         auditlog.ActionUpdateMemberRole,
		EntityType:     "membership",
		EntityID:       &m.ID,
		Details:        map[string]any{"from": previous, "to": role},
		IPAddress:      ipAddress,
	})
	return m, nil
}

// RemoveMember deletes a membership. OWNER memberships cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *auth.AuthContext, membershipID uuid.UUID, ipAddress string) error {
	m, err := s.repo.GetMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.OrganizationID != actor.OrganizationID {
		return ErrMembershipNotFound
	}
	if m.Role == auth.OrgRoleOwner {
		return ErrCannotModifyOwner
	}

	if err := s.repo.DeleteMembership(ctx, membershipID); err != nil {
		return err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actor.UserID,
		OrganizationID: &actor.OrganizationID,
		Action:         auditlog.ActionRemoveMember,
		EntityType:     "membership",
		EntityID:       &membershipID,
		Details:        map[string]any{"removed_user_id": m.UserID},
		IPAddress:      ipAddress,
	})
	return nil
}

// ListForUser returns the caller's memberships oldest-first, so the first
// element is the default active organization at login.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) ListForOrg(ctx context.Context, organizationID uuid.UUID) ([]*Membership, error) {
	return s.repo.ListForOrg(ctx, organizationID)
}

// Lookup resolves the caller's membership in one organization; (nil, nil)
// when absent.
func (s *Service) Lookup(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error) {
	return s.repo.Lookup(ctx, userID, organizationID)
}
