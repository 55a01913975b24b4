package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/records/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const reminderCols = `id, appointment_id, client_id, recipients, subject, body, scheduled_for,
	status, error, sent_at, created_at, updated_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rm Reminder
	err := row.Scan(&rm.ID, &rm.AppointmentID, &rm.ClientID, &rm.Recipients, &rm.Subject, &rm.Body,
		&rm.ScheduledFor, &rm.Status, &rm.Error, &rm.SentAt, &rm.CreatedAt, &rm.UpdatedAt)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func collect(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rm)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, rm *Reminder) error {
	if rm.ID == uuid.Nil {
		rm.ID = uuid.New()
	}
	if rm.Status == "" {
		rm.Status = StatusPending
	}
	if rm.Recipients == nil {
		rm.Recipients = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reminder (id, appointment_id, client_id, recipients, subject, body, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		rm.ID, rm.AppointmentID, rm.ClientID, rm.Recipients, rm.Subject, rm.Body, rm.ScheduledFor, rm.Status,
	).Scan(&rm.CreatedAt, &rm.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1`, id))
}

func (r *repoPG) Due(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+reminderCols+` FROM reminder
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for, created_at
		LIMIT $3`, StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) mark(ctx context.Context, id uuid.UUID, status Status, reason string, sentAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET status = $2, error = $3, sent_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, status, reason, sentAt)
	if err != nil {
		return fmt.Errorf("mark reminder %s %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no pending reminder %s", ErrNotFound, id)
	}
	return nil
}

func (r *repoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mark(ctx, id, StatusSent, "", &at)
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.mark(ctx, id, StatusFailed, reason, nil)
}

func (r *repoPG) FailPending(ctx context.Context, appointmentID uuid.UUID, reason string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET status = $2, error = $3, updated_at = NOW()
		WHERE appointment_id = $1 AND status = $4`, appointmentID, StatusFailed, reason, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("fail reminders of appointment %s: %w", appointmentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Reschedule(ctx context.Context, appointmentID uuid.UUID, at time.Time, subject, body string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET scheduled_for = $2, subject = $3, body = $4, updated_at = NOW()
		WHERE appointment_id = $1 AND status = $5`, appointmentID, at, subject, body, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("reschedule reminders of appointment %s: %w", appointmentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter) ([]*Reminder, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if f.AppointmentID != uuid.Nil {
		add(` AND appointment_id = $%d`, f.AppointmentID)
	}
	if f.ClientID != uuid.Nil {
		add(` AND client_id = $%d`, f.ClientID)
	}
	if f.Status != "" {
		add(` AND status = $%d`, f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reminder`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reminders: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := `SELECT ` + reminderCols + ` FROM reminder` + where +
		fmt.Sprintf(` ORDER BY scheduled_for DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reminders: %w", err)
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM reminder GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count reminders by status: %w", err)
	}
	defer rows.Close()
	out := make(map[Status]int, len(Statuses))
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}
