package auditlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder appends audit entries best-effort. A failed append is a monitoring
// concern, never a reason to fail the clinical write that triggered it: the
// error is logged for operators and swallowed. Record is called after the
// business mutation commits, so an action is never audited unless it
// happened.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends one entry. Cancellation of the inbound request does not
// abort the write; the action already committed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if !e.Action.Valid() {
		r.logger.Error().Str("action", string(e.Action)).Msg("audit: unknown action, entry dropped")
		return
	}

	if err := r.repo.Insert(context.WithoutCancel(ctx), &e); err != nil {
		r.logger.Error().Err(err).
			Str("action", string(e.Action)).
			Str("entity_type", e.EntityType).
			Msg("audit: failed to append entry")
	}
}

// Service exposes the read side of the audit trail.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, action Action, limit, offset int) ([]*Entry, int, error) {
	return s.repo.ListByOrg(ctx, organizationID, action, limit, offset)
}
