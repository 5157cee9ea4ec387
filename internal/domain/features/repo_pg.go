package features

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

const featureCols = `id, organization_id, feature_key, enabled, enabled_at, enabled_by, disabled_at, metadata, updated_at`

func scanFeature(row pgx.Row) (*OrganizationFeature, error) {
	var f OrganizationFeature
	err := row.Scan(&f.ID, &f.OrganizationID, &f.FeatureKey, &f.Enabled,
		&f.EnabledAt, &f.EnabledBy, &f.DisabledAt, &f.Metadata, &f.UpdatedAt)
	return &f, err
}

func (r *repoPG) Get(ctx context.Context, organizationID uuid.UUID, key string) (*OrganizationFeature, error) {
	f, err := scanFeature(r.conn(ctx).QueryRow(ctx, `
		SELECT `+featureCols+` FROM organization_features
		WHERE organization_id = $1 AND feature_key = $2`,
		organizationID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *repoPG) Upsert(ctx context.Context, f *OrganizationFeature) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organization_features
			(id, organization_id, feature_key, enabled, enabled_at, enabled_by, disabled_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (organization_id, feature_key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			enabled_at = EXCLUDED.enabled_at,
			enabled_by = EXCLUDED.enabled_by,
			disabled_at = EXCLUDED.disabled_at,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id, updated_at`,
		f.ID, f.OrganizationID, f.FeatureKey, f.Enabled,
		f.EnabledAt, f.EnabledBy, f.DisabledAt, f.Metadata,
	).Scan(&f.ID, &f.UpdatedAt)
}

func (r *repoPG) ListByOrg(ctx context.Context, organizationID uuid.UUID) ([]*OrganizationFeature, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+featureCols+` FROM organization_features
		WHERE organization_id = $1 ORDER BY feature_key ASC`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*OrganizationFeature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
