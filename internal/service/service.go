// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layer.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

// Errors surfaced to handlers. The storage sentinels are re-exported so
// callers do not need to import the repository package.
var (
	ErrNotFound            = repository.ErrNotFound
	ErrInsufficientTickets = repository.ErrInsufficientTickets
	ErrEmailExists         = repository.ErrEmailExists
	ErrInvalidCredentials  = errors.New("invalid email or password")
)

// ValidationError marks a rejected payload. Err is the ozzo-validation
// error (or a domain error) describing what was wrong.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error) error {
	return &ValidationError{Err: err}
}

func orGlobal(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.L()
	}
	return log
}

// EventService orchestrates event catalog operations.
type EventService struct {
	events repository.EventStore
	log    *zap.Logger
}

// NewEventService constructs an EventService. A nil logger uses zap.L().
func NewEventService(events repository.EventStore, log *zap.Logger) *EventService {
	return &EventService{events: events, log: orGlobal(log)}
}

// ListEvents returns all events, newest first.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (model.Event, error) {
	event, err := s.events.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// CreateEvent validates the request and stores the event with its full
// inventory available.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (model.Event, error) {
	if err := req.Validate(); err != nil {
		return model.Event{}, invalid(err)
	}

	event, err := s.events.CreateEvent(ctx, req.Event())
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}

	s.log.Info("event created",
		zap.String("event_id", event.ID),
		zap.Int("total_tickets", event.TotalTickets),
	)
	return event, nil
}

// UpdateEvent applies an admin edit. Empty and zero fields keep their
// current value. A new ticket total keeps the tickets already sold and
// is rejected when it is lower than that count.
func (s *EventService) UpdateEvent(ctx context.Context, id string, req model.UpdateEventRequest) (model.Event, error) {
	if err := req.Validate(); err != nil {
		return model.Event{}, invalid(err)
	}

	event, err := s.events.UpdateEvent(ctx, id, req.Patch())
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return model.Event{}, ErrNotFound
	case errors.Is(err, model.ErrTotalBelowSold):
		return model.Event{}, invalid(err)
	default:
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}

	s.log.Info("event updated",
		zap.String("event_id", event.ID),
		zap.Int("total_tickets", event.TotalTickets),
		zap.Int("available_tickets", event.AvailableTickets),
	)
	return event, nil
}

// DeleteEvent removes an event. Its bookings remain verifiable.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	if err := s.events.DeleteEvent(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}

	s.log.Info("event deleted", zap.String("event_id", id))
	return nil
}
