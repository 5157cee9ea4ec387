package records

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

const documentCols = `id, organization_id, patient_user_id, title, doc_type,
	allergies, conditions, notes, current_version, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*ClinicalDocument, error) {
	var d ClinicalDocument
	err := row.Scan(&d.ID, &d.OrganizationID, &d.PatientUserID, &d.Title, &d.DocType,
		&d.Allergies, &d.Conditions, &d.Notes, &d.CurrentVersion, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *ClinicalDocument) error {
	d.ID = uuid.New()
	d.CurrentVersion = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_documents
			(id, organization_id, patient_user_id, title, doc_type,
			 allergies, conditions, notes, current_version, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		d.ID, d.OrganizationID, d.PatientUserID, d.Title, d.DocType,
		d.Allergies, d.Conditions, d.Notes, d.CurrentVersion, d.CreatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) Get(ctx context.Context, organizationID, id uuid.UUID) (*ClinicalDocument, error) {
	d, err := scanDocument(r.conn(ctx).QueryRow(ctx, `
		SELECT `+documentCols+` FROM clinical_documents
		WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *repoPG) Update(ctx context.Context, d *ClinicalDocument) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_documents
		SET title = $3, doc_type = $4, allergies = $5, conditions = $6,
		    notes = $7, current_version = $8, updated_at = now()
		WHERE organization_id = $1 AND id = $2`,
		d.OrganizationID, d.ID, d.Title, d.DocType,
		d.Allergies, d.Conditions, d.Notes, d.CurrentVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM clinical_documents WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByOrg(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*ClinicalDocument, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM clinical_documents WHERE organization_id = $1`,
		organizationID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+documentCols+` FROM clinical_documents
		WHERE organization_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`, organizationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*ClinicalDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CreateVersion(ctx context.Context, v *DocumentVersion) error {
	v.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_document_versions
			(id, document_id, version, title, allergies, conditions, notes, edited_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		v.ID, v.DocumentID, v.Version, v.Title, v.Allergies, v.Conditions, v.Notes, v.EditedBy,
	).Scan(&v.CreatedAt)
}

func (r *repoPG) ListVersions(ctx context.Context, documentID uuid.UUID) ([]*DocumentVersion, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, document_id, version, title, allergies, conditions, notes, edited_by, created_at
		FROM clinical_document_versions
		WHERE document_id = $1
		ORDER BY version DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Title,
			&v.Allergies, &v.Conditions, &v.Notes, &v.EditedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
