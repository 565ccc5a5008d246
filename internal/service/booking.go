package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/auth"
	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
	"github.com/jk-7-dev/event-manager/internal/ticketid"
)

// ticketIDAttempts bounds how often a booking is retried with a fresh
// ticket id after the store reports a collision.
const ticketIDAttempts = 3

// QR code edge lengths in pixels. Requested sizes are clamped to
// [MinQRSize, MaxQRSize].
const (
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// BookingService creates bookings and answers ticket queries.
type BookingService struct {
	bookings      repository.BookingStore
	maxPerBooking int
	publicBaseURL string
	newTicketID   func() string
	log           *zap.Logger
}

// NewBookingService constructs a BookingService. maxPerBooking below 1
// falls back to model.DefaultMaxPerBooking; a nil logger uses zap.L().
func NewBookingService(bookings repository.BookingStore, maxPerBooking int, publicBaseURL string, log *zap.Logger) *BookingService {
	if maxPerBooking < 1 {
		maxPerBooking = model.DefaultMaxPerBooking
	}
	return &BookingService{
		bookings:      bookings,
		maxPerBooking: maxPerBooking,
		publicBaseURL: publicBaseURL,
		newTicketID:   ticketid.New,
		log:           orGlobal(log),
	}
}

// MaxPerBooking is the largest ticket count a single booking may hold.
func (s *BookingService) MaxPerBooking() int {
	return s.maxPerBooking
}

// CreateBooking books req.Count tickets of req.EventID for the caller.
//
// The store checks and debits the inventory atomically per event, so the
// service only validates the request and owns ticket id generation.
func (s *BookingService) CreateBooking(ctx context.Context, caller auth.Identity, req model.CreateBookingRequest) (model.Booking, error) {
	if err := req.Validate(s.maxPerBooking); err != nil {
		return model.Booking{}, invalid(err)
	}

	log := s.log.With(
		zap.String("user_id", caller.ID),
		zap.String("event_id", req.EventID),
		zap.Int("count", req.Count),
	)

	for attempt := 1; ; attempt++ {
		booking, err := s.bookings.Book(ctx, model.NewBooking{
			UserID:   caller.ID,
			EventID:  req.EventID,
			TicketID: s.newTicketID(),
			Count:    req.Count,
		})
		switch {
		case err == nil:
			log.Info("booking created",
				zap.String("ticket_id", booking.TicketID),
				zap.Int64("total_cost", booking.TotalCost),
			)
			return booking, nil

		case errors.Is(err, repository.ErrDuplicateTicketID) && attempt < ticketIDAttempts:
			log.Warn("ticket id collision, retrying", zap.Int("attempt", attempt))
			continue

		case errors.Is(err, ErrNotFound):
			return model.Booking{}, ErrNotFound

		case errors.Is(err, ErrInsufficientTickets):
			log.Info("booking rejected", zap.Error(err))
			return model.Booking{}, ErrInsufficientTickets

		default:
			return model.Booking{}, fmt.Errorf("book tickets: %w", err)
		}
	}
}

// ListMyBookings returns the caller's bookings, most recent first.
func (s *BookingService) ListMyBookings(ctx context.Context, caller auth.Identity) ([]model.BookingView, error) {
	views, err := s.bookings.ListByUser(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return views, nil
}

// ListAllBookings returns every booking in creation order.
func (s *BookingService) ListAllBookings(ctx context.Context) ([]model.BookingView, error) {
	views, err := s.bookings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return views, nil
}

// VerifyTicket resolves a ticket id for the door check. It discloses only
// the fields of model.VerifiedTicket.
func (s *BookingService) VerifyTicket(ctx context.Context, ticketID string) (model.VerifiedTicket, error) {
	v, err := s.bookings.FindByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.VerifiedTicket{}, ErrNotFound
		}
		return model.VerifiedTicket{}, fmt.Errorf("find ticket: %w", err)
	}

	ticket := model.VerifiedTicket{
		TicketID:  v.TicketID,
		Count:     v.Count,
		TotalCost: v.TotalCost,
	}
	if v.Event != nil {
		ticket.Event = *v.Event
	}
	if v.User != nil {
		ticket.User = *v.User
	}
	return ticket, nil
}

// VerifyURL is the absolute address of the verification view for ticketID.
func (s *BookingService) VerifyURL(ticketID string) string {
	return s.publicBaseURL + "/verify/" + url.PathEscape(ticketID)
}

// TicketQRCode renders a PNG QR code of VerifyURL(ticketID). Only the
// ticket owner and admins may fetch it; anyone else gets ErrNotFound.
// size is clamped to [MinQRSize, MaxQRSize]; zero selects DefaultQRSize.
func (s *BookingService) TicketQRCode(ctx context.Context, caller auth.Identity, ticketID string, size int) ([]byte, error) {
	v, err := s.bookings.FindByTicketID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	if v.UserID != caller.ID && !caller.IsAdmin {
		return nil, ErrNotFound
	}

	switch {
	case size == 0:
		size = DefaultQRSize
	case size < MinQRSize:
		size = MinQRSize
	case size > MaxQRSize:
		size = MaxQRSize
	}

	png, err := qrcode.Encode(s.VerifyURL(v.TicketID), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
