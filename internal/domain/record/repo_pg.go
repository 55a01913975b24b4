package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const recordCols = `id, kind, client_id, title, status, body, version_id, created_by,
	created_at, updated_at, signed_at, completed_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var body []byte
	err := row.Scan(&rec.ID, &rec.Kind, &rec.ClientID, &rec.Title, &rec.Status, &body,
		&rec.VersionID, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt, &rec.SignedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rec.Body, err = DecodeBody(rec.Kind, body); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	body, err := json.Marshal(rec.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	rec.VersionID = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO record (id, kind, client_id, title, status, body, version_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rec.ID, rec.Kind, rec.ClientID, rec.Title, rec.Status, body, rec.VersionID, rec.CreatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

func (r *repoPG) get(ctx context.Context, id uuid.UUID, lock string) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM record WHERE id = $1`+lock, id))
	if err != nil {
		return nil, err
	}
	if rec.Signatures, err = r.signatures(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.get(ctx, id, "")
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *repoPG) signatures(ctx context.Context, id uuid.UUID) ([]signature.Signature, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT signer_name, role, relationship, method, image, image_type, text, signed_at
		FROM record_signature WHERE record_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sigs := []signature.Signature{}
	for rows.Next() {
		var s signature.Signature
		if err := rows.Scan(&s.SignerName, &s.Role, &s.Relationship, &s.Method,
			&s.Image, &s.ImageType, &s.Text, &s.SignedAt); err != nil {
			return nil, err
		}
		sigs = append(sigs, s)
	}
	return sigs, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE record SET title = $2, status = $3, body = $4, signed_at = $5, completed_at = $6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $7
		RETURNING version_id, updated_at`,
		rec.ID, rec.Title, rec.Status, body, rec.SignedAt, rec.CompletedAt, rec.VersionID,
	).Scan(&rec.VersionID, &rec.UpdatedAt)
	if errors.Is(err, db.ErrNoRows) {
		return ErrConflict
	}
	return err
}

func (r *repoPG) AddSignature(ctx context.Context, id uuid.UUID, s signature.Signature) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO record_signature (record_id, signer_name, role, relationship, method, image, image_type, text, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, s.SignerName, s.Role, s.Relationship, s.Method, s.Image, s.ImageType, s.Text, s.SignedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM record WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Record, int, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != uuid.Nil {
		add("client_id = $%d", f.ClientID)
	}
	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CreatedBy != "" {
		add("created_by = $%d", f.CreatedBy)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("title ILIKE '%%' || $%d || '%%'", q)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM record`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sort := f.Sort
	if !validSortField(sort.Field) {
		sort = DefaultSort
	}
	order := fmt.Sprintf(" ORDER BY %s %s, id", sort.Field, sort.Direction())
	query := `SELECT ` + recordCols + ` FROM record` + clause + order
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func validSortField(field string) bool {
	for _, f := range SortFields {
		if f == field {
			return true
		}
	}
	return false
}
