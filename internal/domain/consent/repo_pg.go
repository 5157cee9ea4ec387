package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const requestCols = `id, owner_user_id, subject_user_id, token, expires_at, responded_at, granted, created_at`

func scanRequest(row pgx.Row) (*ConsentRequest, error) {
	var cr ConsentRequest
	err := row.Scan(&cr.ID, &cr.OwnerUserID, &cr.SubjectUserID, &cr.Token,
		&cr.ExpiresAt, &cr.RespondedAt, &cr.Granted, &cr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cr, nil
}

func (r *repoPG) CreateRequest(ctx context.Context, cr *ConsentRequest) error {
	cr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consent_requests (id, owner_user_id, subject_user_id, token, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		cr.ID, cr.OwnerUserID, cr.SubjectUserID, cr.Token, cr.ExpiresAt,
	).Scan(&cr.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsentRequest, error) {
	cr, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+requestCols+` FROM consent_requests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cr, err
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*ConsentRequest, error) {
	cr, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+requestCols+` FROM consent_requests WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cr, err
}

func (r *repoPG) HasPending(ctx context.Context, ownerUserID, subjectUserID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consent_requests
			WHERE owner_user_id = $1 AND subject_user_id = $2
			  AND responded_at IS NULL AND expires_at > now()
		)`, ownerUserID, subjectUserID,
	).Scan(&exists)
	return exists, err
}

func (r *repoPG) MarkResolved(ctx context.Context, cr *ConsentRequest) error {
	// Only a still-pending row takes an outcome; a concurrent resolution that
	// committed first leaves zero rows to update.
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_requests
		SET responded_at = $2, granted = $3, token = NULL
		WHERE id = $1 AND responded_at IS NULL`,
		cr.ID, cr.RespondedAt, cr.Granted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	cr.Token = nil
	return nil
}

func (r *repoPG) ListForUser(ctx context.Context, userID uuid.UUID) ([]*ConsentRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+` FROM consent_requests
		WHERE owner_user_id = $1 OR subject_user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConsentRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateLink(ctx context.Context, l *FamilyLink) error {
	l.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO family_links (id, owner_user_id, member_user_id, consent_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		l.ID, l.OwnerUserID, l.MemberUserID, l.ConsentID,
	).Scan(&l.CreatedAt)
}

func (r *repoPG) LinkExists(ctx context.Context, ownerUserID, memberUserID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM family_links
			WHERE owner_user_id = $1 AND member_user_id = $2
		)`, ownerUserID, memberUserID,
	).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListLinksForUser(ctx context.Context, userID uuid.UUID) ([]*FamilyLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, owner_user_id, member_user_id, consent_id, created_at
		FROM family_links
		WHERE owner_user_id = $1 OR member_user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FamilyLink
	for rows.Next() {
		var l FamilyLink
		if err := rows.Scan(&l.ID, &l.OwnerUserID, &l.MemberUserID, &l.ConsentID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
