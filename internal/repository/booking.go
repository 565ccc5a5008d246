package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jk-7-dev/event-manager/internal/model"
)

// BookingRepository handles persistence for bookings.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// Book performs a concurrency-safe booking inside a single transaction.
//
// A plain read-then-write lets two requests both read availableTickets=1
// and both book the last ticket. SELECT … FOR UPDATE takes a row-level lock
// on the event, so every other Book (or UpdateEvent) on that event waits
// until this transaction commits or rolls back. Bookings on other events
// lock other rows and proceed in parallel.
func (r *BookingRepository) Book(ctx context.Context, nb model.NewBooking) (model.Booking, error) {
	if _, err := uuid.Parse(nb.EventID); err != nil {
		return model.Booking{}, ErrNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Booking{}, fmt.Errorf("begin transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	// ── Step 1: lock the event row. ─────────────────────────────────────────
	var event model.Event
	err = tx.QueryRow(ctx,
		`SELECT price, available_tickets
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		nb.EventID,
	).Scan(&event.Price, &event.AvailableTickets)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, fmt.Errorf("lock event row: %w", err)
	}

	// ── Step 2: guard against overselling. ─────────────────────────────────
	if nb.Count > event.AvailableTickets {
		return model.Booking{}, ErrInsufficientTickets
	}

	// ── Step 3: record the booking at the locked price. ────────────────────
	booking := model.Booking{
		ID:          uuid.NewString(),
		UserID:      nb.UserID,
		EventID:     nb.EventID,
		TicketID:    nb.TicketID,
		Count:       nb.Count,
		TotalCost:   event.Cost(nb.Count),
		BookingDate: time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, user_id, event_id, ticket_id, count, total_cost, booking_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		booking.ID, booking.UserID, booking.EventID, booking.TicketID,
		booking.Count, booking.TotalCost, booking.BookingDate,
	)
	if err != nil {
		if uniqueViolation(err, "bookings_ticket_id_key") {
			return model.Booking{}, ErrDuplicateTicketID
		}
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}

	// ── Step 4: debit the inventory in the same transaction. ──────────────
	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET available_tickets = available_tickets - $2, updated_at = $3
		 WHERE id = $1`,
		nb.EventID, nb.Count, booking.BookingDate,
	)
	if err != nil {
		return model.Booking{}, fmt.Errorf("debit available_tickets: %w", err)
	}

	// ── Step 5: commit; the booking and the debit become visible together. ─
	if err = tx.Commit(ctx); err != nil {
		return model.Booking{}, fmt.Errorf("commit transaction: %w", err)
	}

	return booking, nil
}

// ListByUser returns a user's bookings, most recent first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]model.BookingView, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT b.id, b.ticket_id, b.count, b.total_cost, b.booking_date, b.user_id,
		        e.title, e.date, e.location, e.image
		 FROM bookings b
		 LEFT JOIN events e ON e.id = b.event_id
		 WHERE b.user_id = $1
		 ORDER BY b.booking_date DESC, b.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	defer rows.Close()

	var views []model.BookingView
	for rows.Next() {
		var (
			v                      model.BookingView
			title, location, image *string
			date                   *time.Time
		)
		if err := rows.Scan(&v.ID, &v.TicketID, &v.Count, &v.TotalCost, &v.BookingDate, &v.UserID,
			&title, &date, &location, &image); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		if title != nil {
			v.Event = &model.EventSummary{Title: *title, Date: *date, Location: *location, Image: *image}
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListAll returns every booking with user and event projections.
func (r *BookingRepository) ListAll(ctx context.Context) ([]model.BookingView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT b.id, b.ticket_id, b.count, b.total_cost, b.booking_date, b.user_id,
		        u.name, u.email, e.title, e.date
		 FROM bookings b
		 JOIN users u ON u.id = b.user_id
		 LEFT JOIN events e ON e.id = b.event_id
		 ORDER BY b.booking_date, b.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var views []model.BookingView
	for rows.Next() {
		var (
			v     model.BookingView
			u     model.UserSummary
			title *string
			date  *time.Time
		)
		if err := rows.Scan(&v.ID, &v.TicketID, &v.Count, &v.TotalCost, &v.BookingDate, &v.UserID,
			&u.Name, &u.Email, &title, &date); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		v.User = &u
		if title != nil {
			v.Event = &model.EventSummary{Title: *title, Date: *date}
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// FindByTicketID returns the booking holding ticketID or ErrNotFound.
func (r *BookingRepository) FindByTicketID(ctx context.Context, ticketID string) (model.BookingView, error) {
	var (
		v                      model.BookingView
		u                      model.UserSummary
		title, location, image *string
		date                   *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT b.id, b.ticket_id, b.count, b.total_cost, b.booking_date, b.user_id,
		        u.name, u.email, e.title, e.date, e.location, e.image
		 FROM bookings b
		 JOIN users u ON u.id = b.user_id
		 LEFT JOIN events e ON e.id = b.event_id
		 WHERE b.ticket_id = $1`,
		ticketID,
	).Scan(&v.ID, &v.TicketID, &v.Count, &v.TotalCost, &v.BookingDate, &v.UserID,
		&u.Name, &u.Email, &title, &date, &location, &image)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BookingView{}, ErrNotFound
		}
		return model.BookingView{}, fmt.Errorf("find booking: %w", err)
	}

	v.User = &u
	if title != nil {
		v.Event = &model.EventSummary{Title: *title, Date: *date, Location: *location, Image: *image}
	}
	return v, nil
}
