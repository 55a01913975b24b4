package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const apptCols = `id, client_id, staff_id, client_name, contact_email, title, location,
	start_time, end_time, status, notes, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.StaffID, &a.ClientName, &a.ContactEmail, &a.Title, &a.Location,
		&a.Start, &a.End, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, client_id, staff_id, client_name, contact_email, title, location,
			start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.StaffID, a.ClientName, a.ContactEmail, a.Title, a.Location,
		a.Start, a.End, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET staff_id = $2, client_name = $3, contact_email = $4, title = $5,
			location = $6, start_time = $7, end_time = $8, status = $9, notes = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.StaffID, a.ClientName, a.ContactEmail, a.Title,
		a.Location, a.Start, a.End, a.Status, a.Notes,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, db.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.ClientID != uuid.Nil {
		add(` AND client_id = $%d`, f.ClientID)
	}
	if f.StaffID != uuid.Nil {
		add(` AND staff_id = $%d`, f.StaffID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}
	if !f.From.IsZero() {
		add(` AND start_time >= $%d`, f.From)
	}
	if !f.To.IsZero() {
		add(` AND start_time < $%d`, f.To)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where + ` ORDER BY start_time`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
