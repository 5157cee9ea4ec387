package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =========== Mock Repository ===========

type mockAuditRepo struct {
	entries   []*Entry
	insertErr error
}

func (m *mockAuditRepo) Insert(_ context.Context, e *Entry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByOrg(_ context.Context, orgID uuid.UUID, action Action, limit, offset int) ([]*Entry, int, error) {
	var matched []*Entry
	for _, e := range m.entries {
		if e.OrganizationID == nil || *e.OrganizationID != orgID {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// =========== Recorder ===========

func TestRecord_AppendsEntry(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo, zerolog.Nop())

	userID := uuid.New()
	orgID := uuid.New()
	rec.Record(context.Background(), Entry{
		UserID:         &userID,
		OrganizationID: &orgID,
		Action:         ActionCreateRecord,
		EntityType:     "clinical_document",
		Details:        map[string]any{"title": "x"},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	if repo.entries[0].Action != ActionCreateRecord {
		t.Errorf("action = %q", repo.entries[0].Action)
	}
}

func TestRecord_SwallowsRepoFailure(t *testing.T) {
	repo := &mockAuditRepo{insertErr: errors.New("db down")}
	rec := NewRecorder(repo, zerolog.Nop())

	// Must not panic or surface the error to the caller.
	rec.Record(context.Background(), Entry{Action: ActionLogin})
}

func TestRecord_DropsUnknownAction(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo, zerolog.Nop())

	rec.Record(context.Background(), Entry{Action: Action("MADE_UP")})
	if len(repo.entries) != 0 {
		t.Errorf("unknown action should be dropped, got %d entries", len(repo.entries))
	}
}

func TestRecord_SurvivesCancelledContext(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, Entry{Action: ActionLogin})
	if len(repo.entries) != 1 {
		t.Error("entry should be written even after request cancellation")
	}
}

// =========== Actions ===========

func TestActionValidity(t *testing.T) {
	valid := []Action{
		ActionCreateOrganization, ActionInviteMember, ActionUpdateMemberRole,
		ActionRemoveMember, ActionEnableFeature, ActionDisableFeature,
		ActionCreateRecord, ActionUpdateRecord, ActionDeleteRecord,
		ActionProposeConsent, ActionGrantConsent, ActionRejectConsent,
		ActionLogin, ActionExportRecords,
	}
	for _, a := range valid {
		if !a.Valid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if Action("DROP_TABLE").Valid() {
		t.Error("unknown action should be invalid")
	}
	if Action("").Valid() {
		t.Error("empty action should be invalid")
	}
}

// =========== Read side ===========

func TestList_FiltersByOrgAndAction(t *testing.T) {
	repo := &mockAuditRepo{}
	rec := NewRecorder(repo, zerolog.Nop())
	svc := NewService(repo)

	orgA := uuid.New()
	orgB := uuid.New()
	for _, e := range []Entry{
		{OrganizationID: &orgA, Action: ActionCreateRecord},
		{OrganizationID: &orgA, Action: ActionEnableFeature},
		{OrganizationID: &orgB, Action: ActionCreateRecord},
	} {
		rec.Record(context.Background(), e)
	}

	all, total, err := svc.List(context.Background(), orgA, "", 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("orgA entries = %d (total %d), want 2", len(all), total)
	}

	creates, _, err := svc.List(context.Background(), orgA, ActionCreateRecord, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creates) != 1 {
		t.Errorf("filtered entries = %d, want 1", len(creates))
	}
}
