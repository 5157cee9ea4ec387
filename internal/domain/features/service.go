package features

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
)

// Auditor appends privileged-action records best-effort.
type Auditor interface {
	Record(ctx context.Context, e auditlog.Entry)
}

type Service struct {
	repo  Repository
	audit Auditor
	now   func() time.Time
}

func NewService(repo Repository, audit Auditor) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// IsEnabled reports whether a feature is on for an organization. A feature
// that was never toggled is off.
func (s *Service) IsEnabled(ctx context.Context, organizationID uuid.UUID, key string) (bool, error) {
	f, err := s.repo.Get(ctx, organizationID, key)
	if err != nil {
		return false, fmt.Errorf("get feature %s: %w", key, err)
	}
	return f != nil && f.Enabled, nil
}

// SetEnabled toggles one feature. Enabling stamps enabled_at/enabled_by and
// clears disabled_at; disabling stamps disabled_at but keeps the historical
// enabled_at, so "when was this last turned on" survives a disable. A toggle
// that does not change state is a no-op: no write, no audit entry. Every
// effective toggle emits exactly one audit entry.
func (s *Service) SetEnabled(ctx context.Context, organizationID uuid.UUID, key string, enabled bool, actorUserID uuid.UUID, metadata map[string]any, ipAddress string) (*OrganizationFeature, error) {
	feature, known := Lookup(key)
	if !known {
		return nil, fmt.Errorf("unknown feature key %q", key)
	}

	f, err := s.repo.Get(ctx, organizationID, key)
	if err != nil {
		return nil, fmt.Errorf("get feature %s: %w", key, err)
	}
	if f == nil {
		if !enabled {
			// Never-toggled features are already disabled.
			return &OrganizationFeature{OrganizationID: organizationID, FeatureKey: key, Enabled: false}, nil
		}
		f = &OrganizationFeature{OrganizationID: organizationID, FeatureKey: key}
	} else if f.Enabled == enabled {
		return f, nil
	}

	now := s.now().UTC()
	f.Enabled = enabled
	if metadata != nil {
		f.Metadata = metadata
	}
	if enabled {
		f.EnabledAt = &now
		f.EnabledBy = &actorUserID
		f.DisabledAt = nil
	} else {
		f.DisabledAt = &now
	}

	if err := s.repo.Upsert(ctx, f); err != nil {
		return nil, fmt.Errorf("upsert feature %s: %w", key, err)
	}

	action := auditlog.ActionEnableFeature
	if !enabled {
		action = auditlog.ActionDisableFeature
	}
	s.audit.Record(ctx, auditlog.Entry{
		UserID:         &actorUserID,
		OrganizationID: &organizationID,
		Action:         action,
		EntityType:     "organization_feature",
		EntityID:       &f.ID,
		Details:        map[string]any{"feature_key": key, "label": feature.Label},
		IPAddress:      ipAddress,
	})
	return f, nil
}

// SeedDefaults writes one enabled row per default feature. Called exactly
// once, inside the organization-creation transaction.
func (s *Service) SeedDefaults(ctx context.Context, organizationID, actorUserID uuid.UUID) error {
	now := s.now().UTC()
	for _, key := range DefaultEnabled() {
		f := &OrganizationFeature{
			OrganizationID: organizationID,
			FeatureKey:     key,
			Enabled:        true,
			EnabledAt:      &now,
			EnabledBy:      &actorUserID,
		}
		if err := s.repo.Upsert(ctx, f); err != nil {
			return fmt.Errorf("seed feature %s: %w", key, err)
		}
	}
	return nil
}

// RequireEnabled gates an operation on a feature. Read access always passes:
// existing data under a disabled feature stays readable so a flag flip never
// strands records. Write access requires the feature to be on and fails with
// a DisabledError carrying the feature's label.
func (s *Service) RequireEnabled(ctx context.Context, organizationID uuid.UUID, key string, access Access) error {
	feature, known := Lookup(key)
	if !known {
		return fmt.Errorf("unknown feature key %q", key)
	}
	if access == AccessRead {
		return nil
	}

	enabled, err := s.IsEnabled(ctx, organizationID, key)
	if err != nil {
		return err
	}
	if !enabled {
		return &DisabledError{Key: key, Label: feature.Label}
	}
	return nil
}

// Status merges the registry with an organization's rows: every known key
// appears exactly once, never-toggled keys as disabled with no provenance.
func (s *Service) Status(ctx context.Context, organizationID uuid.UUID) ([]*OrganizationFeature, error) {
	rows, err := s.repo.ListByOrg(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}

	byKey := make(map[string]*OrganizationFeature, len(rows))
	for _, f := range rows {
		byKey[f.FeatureKey] = f
	}

	out := make([]*OrganizationFeature, 0, len(registry))
	for _, feature := range Registry() {
		if f, ok := byKey[feature.Key]; ok {
			out = append(out, f)
			continue
		}
		out = append(out, &OrganizationFeature{
			OrganizationID: organizationID,
			FeatureKey:     feature.Key,
			Enabled:        false,
		})
	}
	return out, nil
}
