package organization

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/platform/auth"
)

// =========== Mocks ===========

type mockOrgRepo struct {
	orgs        map[uuid.UUID]*Organization
	memberships map[uuid.UUID]*Membership
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{
		orgs:        make(map[uuid.UUID]*Organization),
		memberships: make(map[uuid.UUID]*Membership),
	}
}

func (m *mockOrgRepo) CreateOrganization(_ context.Context, org *Organization) error {
	org.ID = uuid.New()
	m.orgs[org.ID] = org
	return nil
}

func (m *mockOrgRepo) GetOrganization(_ context.Context, id uuid.UUID) (*Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return org, nil
}

func (m *mockOrgRepo) CreateMembership(_ context.Context, mem *Membership) error {
	for _, existing := range m.memberships {
		if existing.UserID == mem.UserID && existing.OrganizationID == mem.OrganizationID {
			return ErrDuplicateMembership
		}
	}
	mem.ID = uuid.New()
	m.memberships[mem.ID] = mem
	return nil
}

func (m *mockOrgRepo) Lookup(_ context.Context, userID, orgID uuid.UUID) (*Membership, error) {
	for _, mem := range m.memberships {
		if mem.UserID == userID && mem.OrganizationID == orgID {
			return mem, nil
		}
	}
	return nil, nil
}

func (m *mockOrgRepo) GetMembership(_ context.Context, id uuid.UUID) (*Membership, error) {
	mem, ok := m.memberships[id]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return mem, nil
}

func (m *mockOrgRepo) UpdateMembershipRole(_ context.Context, mem *Membership) error {
	if _, ok := m.memberships[mem.ID]; !ok {
		return ErrMembershipNotFound
	}
	m.memberships[mem.ID] = mem
	return nil
}

func (m *mockOrgRepo) DeleteMembership(_ context.Context, id uuid.UUID) error {
	if _, ok := m.memberships[id]; !ok {
		return ErrMembershipNotFound
	}
	delete(m.memberships, id)
	return nil
}

func (m *mockOrgRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*Membership, error) {
	var out []*Membership
	for _, mem := range m.memberships {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockOrgRepo) ListForOrg(_ context.Context, orgID uuid.UUID) ([]*Membership, error) {
	var out []*Membership
	for _, mem := range m.memberships {
		if mem.OrganizationID == orgID {
			out = append(out, mem)
		}
	}
	return out, nil
}

// noopTx runs the function without a real transaction.
type noopTx struct{}

func (noopTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockSeeder struct {
	seeded []uuid.UUID
	err    error
}

func (m *mockSeeder) SeedDefaults(_ context.Context, orgID, _ uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.seeded = append(m.seeded, orgID)
	return nil
}

type captureAuditor struct {
	entries []auditlog.Entry
}

func (c *captureAuditor) Record(_ context.Context, e auditlog.Entry) {
	c.entries = append(c.entries, e)
}

func newTestService() (*Service, *mockOrgRepo, *mockSeeder, *captureAuditor) {
	repo := newMockOrgRepo()
	seeder := &mockSeeder{}
	audit := &captureAuditor{}
	return NewService(repo, noopTx{}, seeder, audit), repo, seeder, audit
}

func creator() *auth.Identity {
	return &auth.Identity{UserID: uuid.New(), Email: "founder@example.com", PlatformRole: auth.PlatformRoleProvider}
}

func actorFor(userID, orgID uuid.UUID, role auth.OrgRole) *auth.AuthContext {
	return &auth.AuthContext{UserID: userID, OrganizationID: orgID, OrgRole: role}
}

// =========== Create ===========

func TestCreate_ProvisionsOwnerAndDefaults(t *testing.T) {
	svc, repo, seeder, audit := newTestService()
	id := creator()

	org, err := svc.Create(context.Background(), "  Lakeside Clinic  ", id, "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.Name != "Lakeside Clinic" {
		t.Errorf("name not trimmed: %q", org.Name)
	}

	mem, _ := repo.Lookup(context.Background(), id.UserID, org.ID)
	if mem == nil || mem.Role != auth.OrgRoleOwner {
		t.Fatalf("creator should hold an OWNER membership, got %+v", mem)
	}

	if len(seeder.seeded) != 1 || seeder.seeded[0] != org.ID {
		t.Errorf("defaults not seeded for the new org: %v", seeder.seeded)
	}

	if len(audit.entries) != 1 || audit.entries[0].Action != auditlog.ActionCreateOrganization {
		t.Errorf("audit entries = %+v", audit.entries)
	}
}

func TestCreate_EmptyName(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.Create(context.Background(), "   ", creator(), ""); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("got %v, want ErrNameRequired", err)
	}
}

func TestCreate_SeederFailureAbortsAudit(t *testing.T) {
	svc, _, seeder, audit := newTestService()
	seeder.err = errors.New("seed failed")

	if _, err := svc.Create(context.Background(), "Clinic", creator(), ""); err == nil {
		t.Fatal("expected error when seeding fails")
	}
	if len(audit.entries) != 0 {
		t.Error("failed creation must not be audited")
	}
}

// =========== InviteMember ===========

func TestInviteMember(t *testing.T) {
	svc, _, _, audit := newTestService()
	id := creator()
	org, _ := svc.Create(context.Background(), "Clinic", id, "")
	actor := actorFor(id.UserID, org.ID, auth.OrgRoleOwner)

	t.Run("success", func(t *testing.T) {
		m, err := svc.InviteMember(context.Background(), actor, uuid.New(), auth.OrgRoleDoctor, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Role != auth.OrgRoleDoctor || m.OrganizationID != org.ID {
			t.Errorf("membership = %+v", m)
		}
	})

	t.Run("cannot grant owner", func(t *testing.T) {
		if _, err := svc.InviteMember(context.Background(), actor, uuid.New(), auth.OrgRoleOwner, ""); err == nil {
			t.Fatal("expected error inviting as OWNER")
		}
	})

	t.Run("invalid role", func(t *testing.T) {
		if _, err := svc.InviteMember(context.Background(), actor, uuid.New(), "WIZARD", ""); err == nil {
			t.Fatal("expected error for unknown role")
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		userID := uuid.New()
		if _, err := svc.InviteMember(context.Background(), actor, userID, auth.OrgRoleNurse, ""); err != nil {
			t.Fatalf("first invite failed: %v", err)
		}
		_, err := svc.InviteMember(context.Background(), actor, userID, auth.OrgRoleDoctor, "")
		if !errors.Is(err, ErrDuplicateMembership) {
			t.Errorf("got %v, want ErrDuplicateMembership", err)
		}
	})

	for _, e := range audit.entries {
		if e.Action != auditlog.ActionCreateOrganization && e.Action != auditlog.ActionInviteMember {
			t.Errorf("unexpected audit action %q", e.Action)
		}
	}
}

// =========== UpdateMemberRole / RemoveMember ===========

func TestUpdateMemberRole_OwnerIsImmutable(t *testing.T) {
	svc, repo, _, _ := newTestService()
	id := creator()
	org, _ := svc.Create(context.Background(), "Clinic", id, "")
	actor := actorFor(id.UserID, org.ID, auth.OrgRoleOwner)

	ownerMem, _ := repo.Lookup(context.Background(), id.UserID, org.ID)

	t.Run("cannot demote owner", func(t *testing.T) {
		_, err := svc.UpdateMemberRole(context.Background(), actor, ownerMem.ID, auth.OrgRoleAdmin, "")
		if !errors.Is(err, ErrCannotModifyOwner) {
			t.Errorf("got %v, want ErrCannotModifyOwner", err)
		}
	})

	t.Run("cannot promote to owner", func(t *testing.T) {
		m, _ := svc.InviteMember(context.Background(), actor, uuid.New(), auth.OrgRoleAdmin, "")
		_, err := svc.UpdateMemberRole(context.Background(), actor, m.ID, auth.OrgRoleOwner, "")
		if !errors.Is(err, ErrCannotModifyOwner) {
			t.Errorf("got %v, want ErrCannotModifyOwner", err)
		}
	})

	t.Run("regular change", func(t *testing.T) {
		m, _ := svc.InviteMember(context.Background(), actor, uuid.New(), auth.OrgRoleNurse, "")
		updated, err := svc.UpdateMemberRole(context.Background(), actor, m.ID, auth.OrgRoleDoctor, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Role != auth.OrgRoleDoctor {
			t.Errorf("role = %q", updated.Role)
		}
	})
}

func TestUpdateMemberRole_CrossOrgReadsAsNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	idA := creator()
	orgA, _ := svc.Create(context.Background(), "Clinic A", idA, "")
	idB := creator()
	orgB, _ := svc.Create(context.Background(), "Clinic B", idB, "")

	actorA := actorFor(idA.UserID, orgA.ID, auth.OrgRoleOwner)
	m, _ := svc.InviteMember(context.Background(), actorFor(idB.UserID, orgB.ID, auth.OrgRoleOwner), uuid.New(), auth.OrgRoleNurse, "")

	// An admin of org A must not be able to touch org B's memberships, and
	// must not learn that the membership exists.
	_, err := svc.UpdateMemberRole(context.Background(), actorA, m.ID, auth.OrgRoleDoctor, "")
	if !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("got %v, want ErrMembershipNotFound", err)
	}
	if err := svc.RemoveMember(context.Background(), actorA, m.ID, ""); !errors.Is(err, ErrMembershipNotFound) {
		t.Errorf("remove: got %v, want ErrMembershipNotFound", err)
	}
}

func TestRemoveMember(t *testing.T) {
	svc, repo, _, _ := newTestService()
	id := creator()
	org, _ := svc.Create(context.Background(), "Clinic", id, "")
	actor := actorFor(id.UserID, org.ID, auth.OrgRoleOwner)

	t.Run("owner cannot be removed", func(t *testing.T) {
		ownerMem, _ := repo.Lookup(context.Background(), id.UserID, org.ID)
		if err := svc.RemoveMember(context.Background(), actor, ownerMem.ID, ""); !errors.Is(err, ErrCannotModifyOwner) {
			t.Errorf("got %v, want ErrCannotModifyOwner", err)
		}
	})

	t.Run("regular member", func(t *testing.T) {
		m, _ := svc.InviteMember(context.Background(), actor, uuid.New(), auth.OrgRoleReceptionist, "")
		if err := svc.RemoveMember(context.Background(), actor, m.ID, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.GetMembership(context.Background(), m.ID); !errors.Is(err, ErrMembershipNotFound) {
			t.Error("membership should be gone")
		}
	})
}
