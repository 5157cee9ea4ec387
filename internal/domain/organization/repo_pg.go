package organization

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

func (r *repoPG) CreateOrganization(ctx context.Context, org *Organization) error {
	org.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organizations (id, name, created_by)
		VALUES ($1,$2,$3)
		RETURNING created_at`,
		org.ID, org.Name, org.CreatedBy,
	).Scan(&org.CreatedAt)
}

func (r *repoPG) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var org Organization
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, created_by, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Name, &org.CreatedBy, &org.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

const membershipCols = `id, user_id, organization_id, role, created_at`

func scanMembership(row pgx.Row) (*Membership, error) {
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.Role, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) CreateMembership(ctx context.Context, m *Membership) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO memberships (id, user_id, organization_id, role)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		m.ID, m.UserID, m.OrganizationID, m.Role,
	).Scan(&m.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateMembership
	}
	return err
}

func (r *repoPG) Lookup(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error) {
	m, err := scanMembership(r.conn(ctx).QueryRow(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE user_id = $1 AND organization_id = $2`,
		userID, organizationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repoPG) GetMembership(ctx context.Context, id uuid.UUID) (*Membership, error) {
	m, err := scanMembership(r.conn(ctx).QueryRow(ctx, `
		SELECT `+membershipCols+` FROM memberships WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repoPG) UpdateMembershipRole(ctx context.Context, m *Membership) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE memberships SET role = $2 WHERE id = $1`, m.ID, m.Role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (r *repoPG) DeleteMembership(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func (r *repoPG) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

func (r *repoPG) ListForOrg(ctx context.Context, organizationID uuid.UUID) ([]*Membership, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE organization_id = $1 ORDER BY created_at ASC`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMemberships(rows)
}

func collectMemberships(rows pgx.Rows) ([]*Membership, error) {
	var items []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
