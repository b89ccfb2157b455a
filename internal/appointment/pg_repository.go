package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email *string
	var doc []byte

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&c.Active,
		&doc,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Email = email
	if len(doc) > 0 {
		var appt Appointment
		if err := json.Unmarshal(doc, &appt); err != nil {
			return nil, fmt.Errorf("decode appointment of client %s: %w", c.ID, err)
		}
		c.Appointment = &appt
	}
	return &c, nil
}

// Interface methods

func (r *PgRepository) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, active, appointment, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) SaveAppointment(ctx context.Context, clientID uuid.UUID, appt Appointment) error {
	doc, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("encode appointment: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE clients
		SET appointment = $2,
		    updated_at = now()
		WHERE id = $1
	`, clientID, doc)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *PgRepository) ListScheduledClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, active, appointment, created_at, updated_at
		FROM clients
		WHERE active
		  AND appointment IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateClient inserts a client without an appointment. Client management
// lives outside this service; the seed command uses it.
func (r *PgRepository) CreateClient(ctx context.Context, c Client) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO clients (id, name, email, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, c.ID, c.Name, c.Email, c.Active)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, client_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.ClientID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) SentReminderOffsets(ctx context.Context, clientID uuid.UUID, date calendar.Date, since time.Time) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT (payload->>'offset')::int
		FROM appointment_events
		WHERE client_id = $1
		  AND event_type = $2
		  AND payload->>'date' = $3
		  AND created_at >= $4
	`, clientID, EventAppointmentReminderSent, date.String(), since.Truncate(time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("query sent reminders: %w", err)
	}

	offsets, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("scan sent reminders: %w", err)
	}
	return offsets, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
