package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/domain/features"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/hipaa"
)

const entityType = "clinical_document"

// FeatureGate decides whether an operation on feature-guarded data may
// proceed. Reads always may; the gate only blocks new writes.
type FeatureGate interface {
	RequireEnabled(ctx context.Context, organizationID uuid.UUID, key string, access features.Access) error
}

type Auditor interface {
	Record(ctx context.Context, e auditlog.Entry)
}

type Service struct {
	repo  Repository
	tx    db.Transactor
	enc   *hipaa.EncryptionService
	gate  FeatureGate
	audit Auditor
}

func NewService(repo Repository, tx db.Transactor, enc *hipaa.EncryptionService, gate FeatureGate, audit Auditor) *Service {
	return &Service{repo: repo, tx: tx, enc: enc, gate: gate, audit: audit}
}

// seal encrypts the sensitive fields in place before the document touches
// the database.
func (s *Service) seal(d *ClinicalDocument) error {
	rec := map[string]any{
		"allergies":  d.Allergies,
		"conditions": d.Conditions,
		"notes":      d.Notes,
	}
	sealed, err := s.enc.EncryptFields(rec, hipaa.SensitiveFields(entityType))
	if err != nil {
		return fmt.Errorf("encrypt document fields: %w", err)
	}
	d.Allergies = sealed["allergies"].(string)
	d.Conditions = sealed["conditions"].(string)
	d.Notes = sealed["notes"].(string)
	return nil
}

func (s *Service) open(d *ClinicalDocument) error {
	rec := map[string]any{
		"allergies":  d.Allergies,
		"conditions": d.Conditions,
		"notes":      d.Notes,
	}
	opened, err := s.enc.DecryptFields(rec, hipaa.SensitiveFields(entityType))
	if err != nil {
		return fmt.Errorf("decrypt document fields: %w", err)
	}
	d.Allergies = opened["allergies"].(string)
	d.Conditions = opened["conditions"].(string)
	d.Notes = opened["notes"].(string)
	return nil
}

type DocumentInput struct {
	PatientUserID uuid.UUID `json:"patient_user_id"`
	Title         string    `json:"title"`
	DocType       string    `json:"doc_type"`
	Allergies     string    `json:"allergies"`
	Conditions    string    `json:"conditions"`
	Notes         string    `json:"notes"`
}

// Create writes a new document and its first version snapshot in one
// transaction. Creation requires report sharing to be enabled for the org.
func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, in DocumentInput, actorUserID uuid.UUID, ipAddress string) (*ClinicalDocument, error) {
	if err := s.gate.RequireEnabled(ctx, organizationID, features.KeyReportSharing, features.AccessWrite); err != nil {
		return nil, err
	}

	d := &ClinicalDocument{
		OrganizationID: organizationID,
		PatientUserID:  in.PatientUserID,
		Title:          in.Title,
		DocType:        in.DocType,
		Allergies:      in.Allergies,
		Conditions:     in.Conditions,
		Notes:          in.Notes,
		CreatedBy:      actorUserID,
	}
	if err := s.seal(d); err != nil {
		return nil, err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, d); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.CreateVersion(ctx, &DocumentVersion{
			DocumentID: d.ID,
			Version:    d.CurrentVersion,
			Title:      d.Title,
			Allergies:  d.Allergies,
			Conditions: d.Conditions,
			Notes:      d.Notes,
			EditedBy:   actorUserID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actorUserID,
		OrganizationID: &organizationID,
		Action:         auditlog.ActionCreateRecord,
		EntityType:     entityType,
		EntityID:       &d.ID,
		Details:        map[string]any{"title": d.Title, "doc_type": d.DocType},
		IPAddress:      ipAddress,
	})

	if err := s.open(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns one document with sensitive fields decrypted. Reads are never
// feature-gated: disabling report sharing must not strand existing data.
func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*ClinicalDocument, error) {
	d, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	if err := s.open(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Update rewrites the document and appends a version snapshot atomically, so
// current_version always has a matching history row.
func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, in DocumentInput, actorUserID uuid.UUID, ipAddress string) (*ClinicalDocument, error) {
	d, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}

	d.Title = in.Title
	d.DocType = in.DocType
	d.Allergies = in.Allergies
	d.Conditions = in.Conditions
	d.Notes = in.Notes
	if err := s.seal(d); err != nil {
		return nil, err
	}
	d.CurrentVersion++

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, d); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return s.repo.CreateVersion(ctx, &DocumentVersion{
			DocumentID: d.ID,
			Version:    d.CurrentVersion,
			Title:      d.Title,
			Allergies:  d.Allergies,
			Conditions: d.Conditions,
			Notes:      d.Notes,
			EditedBy:   actorUserID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actorUserID,
		OrganizationID: &organizationID,
		Action:         auditlog.ActionUpdateRecord,
		EntityType:     entityType,
		EntityID:       &d.ID,
		Details:        map[string]any{"version": d.CurrentVersion},
		IPAddress:      ipAddress,
	})

	if err := s.open(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, organizationID, id uuid.UUID, actorUserID uuid.UUID, ipAddress string) error {
	if err := s.repo.Delete(ctx, organizationID, id); err != nil {
		return err
	}

	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actorUserID,
		OrganizationID: &organizationID,
		Action:         auditlog.ActionDeleteRecord,
		EntityType:     entityType,
		EntityID:       &id,
		IPAddress:      ipAddress,
	})
	return nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*ClinicalDocument, int, error) {
	docs, total, err := s.repo.ListByOrg(ctx, organizationID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	for _, d := range docs {
		if err := s.open(d); err != nil {
			return nil, 0, err
		}
	}
	return docs, total, nil
}

// ListVersions returns version metadata only; historical sensitive payloads
// never leave the service layer.
func (s *Service) ListVersions(ctx context.Context, organizationID, id uuid.UUID) ([]*DocumentVersion, error) {
	d, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return s.repo.ListVersions(ctx, id)
}
