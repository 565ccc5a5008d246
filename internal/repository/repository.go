// Package repository defines the storage contracts of the ticketing system
// and implements them on PostgreSQL with pgx (no ORM).
//
// The sibling packages memory and docstore implement the same contracts
// in-process and on MongoDB.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jk-7-dev/event-manager/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientTickets is returned when a booking asks for more tickets
// than the event has available.
var ErrInsufficientTickets = errors.New("not enough tickets available")

// ErrDuplicateTicketID is returned when a booking's ticket id is already taken.
var ErrDuplicateTicketID = errors.New("ticket id already exists")

// ErrEmailExists is returned when registering an email that is already in use.
var ErrEmailExists = errors.New("email already registered")

// EventStore persists the event catalog.
type EventStore interface {
	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	// UpdateEvent applies patch under the same per-event serialization as Book.
	UpdateEvent(ctx context.Context, id string, patch model.EventPatch) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// BookingStore persists the booking ledger.
type BookingStore interface {
	// Book atomically checks the event's inventory, records the booking at
	// the event's current price and debits the inventory. Concurrent calls
	// for the same event behave as if run one at a time.
	Book(ctx context.Context, nb model.NewBooking) (model.Booking, error)
	// ListByUser returns the user's bookings newest first, with event
	// title, date, location and image.
	ListByUser(ctx context.Context, userID string) ([]model.BookingView, error)
	// ListAll returns every booking oldest first, with user name and email
	// and event title and date.
	ListAll(ctx context.Context) ([]model.BookingView, error)
	// FindByTicketID returns the booking with full event and user projections.
	FindByTicketID(ctx context.Context, ticketID string) (model.BookingView, error)
}

// UserStore persists accounts of the identity provider.
type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	FindUserByID(ctx context.Context, id string) (model.User, error)
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
}

// ─── Events ───────────────────────────────────────────────────────────────────

const eventColumns = `id, title, description, date, location, price, image,
	total_tickets, available_tickets, created_at, updated_at`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Price, &e.Image,
		&e.TotalTickets, &e.AvailableTickets, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// CreateEvent inserts a new event and returns it with a generated UUID.
func (r *EventRepository) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Title, e.Description, e.Date, e.Location, e.Price, e.Image,
		e.TotalTickets, e.AvailableTickets, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (r *EventRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetEvent returns a single event or ErrNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, ErrNotFound
	}

	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpdateEvent locks the event row, applies the patch and writes it back.
// The row lock is the one Book takes, so an inventory recompute cannot
// interleave with a booking.
func (r *EventRepository) UpdateEvent(ctx context.Context, id string, patch model.EventPatch) (model.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Event{}, ErrNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Event{}, fmt.Errorf("begin transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("lock event row: %w", err)
	}

	updated, err := current.Apply(patch)
	if err != nil {
		return model.Event{}, err
	}
	updated.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, date = $4, location = $5, price = $6, image = $7,
		     total_tickets = $8, available_tickets = $9, updated_at = $10
		 WHERE id = $1`,
		id, updated.Title, updated.Description, updated.Date, updated.Location, updated.Price, updated.Image,
		updated.TotalTickets, updated.AvailableTickets, updated.UpdatedAt,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return model.Event{}, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// DeleteEvent removes an event. Its bookings are kept.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// uniqueViolation reports whether err is a unique-constraint violation on
// the named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}
