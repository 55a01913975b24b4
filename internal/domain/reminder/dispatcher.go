package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize caps how many due reminders one batch loads.
const DefaultBatchSize = 100

// Deliverer sends one reminder email. It is implemented by the notification
// manager.
type Deliverer interface {
	Deliver(ctx context.Context, recipients []string, subject, body string) error
}

// Publisher receives a summary of every batch that attempted deliveries.
type Publisher interface {
	Notify(ctx context.Context, topic, eventType, subject string, data any)
}

// Topic is the publisher topic batch summaries are sent on.
const Topic = "reminders"

// BatchResult counts the outcome of one RunBatch.
type BatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher delivers due reminders. Every reminder gets exactly one delivery
// attempt; a failure is recorded on the reminder and never retried.
type Dispatcher struct {
	repo        Repository
	deliverer   Deliverer
	publisher   Publisher
	logger      zerolog.Logger
	concurrency int
	BatchSize   int
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. A concurrency of 1 or less delivers one
// reminder at a time.
func NewDispatcher(repo Repository, d Deliverer, logger zerolog.Logger, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		repo:        repo,
		deliverer:   d,
		logger:      logger,
		concurrency: concurrency,
		BatchSize:   DefaultBatchSize,
		now:         time.Now,
	}
}

// SetPublisher enables batch summary events.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = p
}

// RunBatch attempts every pending reminder due at now, oldest first, and
// marks each sent or failed. A delivery failure does not stop the batch. The
// returned error reports storage failures and cancellation of ctx.
func (d *Dispatcher) RunBatch(ctx context.Context, now time.Time) (BatchResult, error) {
	due, err := d.repo.Due(ctx, now, d.BatchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load due reminders: %w", err)
	}
	sendable := due[:0]
	for _, r := range due {
		if r.Sendable(now) {
			sendable = append(sendable, r)
		}
	}
	sort.SliceStable(sendable, func(i, j int) bool {
		return sendable[i].ScheduledFor.Before(sendable[j].ScheduledFor)
	})

	var res BatchResult
	if d.concurrency == 1 {
		err = d.sequential(ctx, sendable, &res)
	} else {
		err = d.concurrent(ctx, sendable, &res)
	}

	ev := d.logger.Debug()
	if len(sendable) > 0 {
		ev = d.logger.Info()
	}
	ev.Int("due", len(sendable)).Int("sent", res.Sent).Int("failed", res.Failed).
		Msg("reminder batch finished")
	if d.publisher != nil && res.Sent+res.Failed > 0 {
		d.publisher.Notify(ctx, Topic, "reminder.batch", "", res)
	}
	return res, err
}

func (d *Dispatcher) sequential(ctx context.Context, due []*Reminder, res *BatchResult) error {
	var first error
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		sent, err := d.deliverOne(ctx, r)
		if sent {
			res.Sent++
		} else {
			res.Failed++
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Dispatcher) concurrent(ctx context.Context, due []*Reminder, res *BatchResult) error {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		r := r
		g.Go(func() error {
			sent, err := d.deliverOne(ctx, r)
			mu.Lock()
			if sent {
				res.Sent++
			} else {
				res.Failed++
			}
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// deliverOne makes the single delivery attempt for r. The error reports a
// failure to record the outcome, not a failed delivery.
func (d *Dispatcher) deliverOne(ctx context.Context, r *Reminder) (bool, error) {
	if err := d.deliverer.Deliver(ctx, r.Recipients, r.Subject, r.Body); err != nil {
		d.logger.Warn().Err(err).Str("reminder_id", r.ID.String()).
			Str("appointment_id", r.AppointmentID.String()).Msg("reminder delivery failed")
		if merr := d.repo.MarkFailed(ctx, r.ID, err.Error()); merr != nil {
			return false, fmt.Errorf("mark reminder %s failed: %w", r.ID, merr)
		}
		r.Status, r.Error = StatusFailed, err.Error()
		return false, nil
	}

	at := d.now().UTC()
	if err := d.repo.MarkSent(ctx, r.ID, at); err != nil {
		return true, fmt.Errorf("mark reminder %s sent: %w", r.ID, err)
	}
	r.Status, r.SentAt = StatusSent, &at
	return true, nil
}

// Start runs a batch every interval until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.RunBatch(ctx, d.now()); err != nil && ctx.Err() == nil {
				d.logger.Error().Err(err).Msg("reminder batch failed")
			}
		}
	}
}
