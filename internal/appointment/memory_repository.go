package appointment

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
)

// MemoryRepository is an in-process Repository for the memory store driver
// and for tests. Documents are copied in and out so callers never alias
// stored state.
type MemoryRepository struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]Client
	events  []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{clients: make(map[uuid.UUID]Client)}
}

func copyClient(c Client) Client {
	if c.Appointment != nil {
		a := c.Appointment.Clone()
		c.Appointment = &a
	}
	if c.Email != nil {
		e := *c.Email
		c.Email = &e
	}
	return c
}

func (r *MemoryRepository) CreateClient(_ context.Context, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.clients[c.ID] = copyClient(c)
	return nil
}

func (r *MemoryRepository) GetClient(_ context.Context, id uuid.UUID) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	out := copyClient(c)
	return &out, nil
}

func (r *MemoryRepository) SaveAppointment(_ context.Context, clientID uuid.UUID, appt Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}
	a := appt.Clone()
	c.Appointment = &a
	c.UpdatedAt = time.Now().UTC()
	r.clients[clientID] = c
	return nil
}

func (r *MemoryRepository) ListScheduledClients(_ context.Context) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Client
	for _, c := range r.clients {
		if c.Active && c.Appointment != nil {
			out = append(out, copyClient(c))
		}
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) SentReminderOffsets(_ context.Context, clientID uuid.UUID, date calendar.Date, since time.Time) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []int
	for _, ev := range r.events {
		if ev.ClientID != clientID || ev.EventType != EventAppointmentReminderSent || ev.CreatedAt.Before(since) {
			continue
		}
		var p reminderPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			continue
		}
		if p.Date == date.String() && !slices.Contains(out, p.Offset) {
			out = append(out, p.Offset)
		}
	}
	return out, nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}
