package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

// PGBlobStore keeps blobs in the "blob" table. Archived PDFs are small enough
// that bytea storage keeps backups and transactions simple.
type PGBlobStore struct {
	pool *pgxpool.Pool
}

func NewPGBlobStore(pool *pgxpool.Pool) *PGBlobStore {
	return &PGBlobStore{pool: pool}
}

const blobCols = `id, file_name, content_type, size, client_id, record_id, category, hash, created_at, created_by`

func scanBlob(row pgx.Row) (*BlobMetadata, error) {
	var m BlobMetadata
	var clientID, recordID *string
	if err := row.Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &clientID, &recordID,
		&m.Category, &m.Hash, &m.CreatedAt, &m.CreatedBy); err != nil {
		return nil, err
	}
	if clientID != nil {
		m.ClientID = *clientID
	}
	if recordID != nil {
		m.RecordID = *recordID
	}
	return &m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PGBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	q := db.Conn(ctx, s.pool)
	if meta.RecordID != "" {
		existing, err := scanBlob(q.QueryRow(ctx,
			`SELECT `+blobCols+` FROM blob WHERE record_id = $1 AND hash = $2 LIMIT 1`,
			meta.RecordID, meta.Hash))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lookup blob by hash: %w", err)
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO blob (id, file_name, content_type, size, client_id, record_id, category, hash, created_at, created_by, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, nullable(meta.ClientID), nullable(meta.RecordID),
		meta.Category, meta.Hash, meta.CreatedAt, meta.CreatedBy, data)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return &meta, nil
}

func (s *PGBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	row := db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+blobCols+`, content FROM blob WHERE id = $1`, id)

	var m BlobMetadata
	var clientID, recordID *string
	var data []byte
	err := row.Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &clientID, &recordID,
		&m.Category, &m.Hash, &m.CreatedAt, &m.CreatedBy, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get blob: %w", err)
	}
	if clientID != nil {
		m.ClientID = *clientID
	}
	if recordID != nil {
		m.RecordID = *recordID
	}
	return io.NopCloser(bytes.NewReader(data)), &m, nil
}

func (s *PGBlobStore) Delete(ctx context.Context, id string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM blob WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *PGBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	m, err := scanBlob(db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT `+blobCols+` FROM blob WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob metadata: %w", err)
	}
	return m, nil
}

func (s *PGBlobStore) List(ctx context.Context, p ListParams) ([]*BlobMetadata, int, error) {
	var where []string
	var args []interface{}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("client_id", p.ClientID)
	add("record_id", p.RecordID)
	add("category", p.Category)

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	q := db.Conn(ctx, s.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM blob`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blobs: %w", err)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT `+blobCols+` FROM blob%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	var items []*BlobMetadata
	for rows.Next() {
		m, err := scanBlob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan blob: %w", err)
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
