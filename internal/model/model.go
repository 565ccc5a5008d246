// Package model defines the core domain types for the event ticketing system.
package model

import (
	"errors"
	"time"
)

// DefaultMaxPerBooking caps the number of tickets one booking may hold.
const DefaultMaxPerBooking = 5

// ErrTotalBelowSold is returned when an edit would shrink an event's
// capacity below the number of tickets already sold.
var ErrTotalBelowSold = errors.New("total tickets cannot be lower than tickets already sold")

// Event represents a dated occurrence with a finite ticket inventory.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Date             time.Time `json:"date"`
	Location         string    `json:"location"`
	Price            int64     `json:"price"`
	Image            string    `json:"image"`
	TotalTickets     int       `json:"totalTickets"`
	AvailableTickets int       `json:"availableTickets"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Sold returns the number of tickets debited from the inventory.
func (e Event) Sold() int {
	return e.TotalTickets - e.AvailableTickets
}

// Cost is the price of count tickets at the event's current price.
func (e Event) Cost(count int) int64 {
	return e.Price * int64(count)
}

// EventPatch carries an admin edit. A nil, empty or zero field keeps the
// current value, so a field cannot be cleared or set to zero by an edit.
type EventPatch struct {
	Title        *string
	Description  *string
	Date         *time.Time
	Location     *string
	Price        *int64
	Image        *string
	TotalTickets *int
}

// Apply returns e with the patch applied. Changing TotalTickets keeps the
// sold count and recomputes AvailableTickets from it.
func (e Event) Apply(p EventPatch) (Event, error) {
	if p.Title != nil && *p.Title != "" {
		e.Title = *p.Title
	}
	if p.Description != nil && *p.Description != "" {
		e.Description = *p.Description
	}
	if p.Date != nil && !p.Date.IsZero() {
		e.Date = *p.Date
	}
	if p.Location != nil && *p.Location != "" {
		e.Location = *p.Location
	}
	if p.Price != nil && *p.Price != 0 {
		e.Price = *p.Price
	}
	if p.Image != nil && *p.Image != "" {
		e.Image = *p.Image
	}
	if p.TotalTickets != nil && *p.TotalTickets != 0 && *p.TotalTickets != e.TotalTickets {
		sold := e.Sold()
		if *p.TotalTickets < sold {
			return Event{}, ErrTotalBelowSold
		}
		e.TotalTickets = *p.TotalTickets
		e.AvailableTickets = e.TotalTickets - sold
	}
	return e, nil
}

// Booking is a confirmed purchase of Count tickets for one event.
// It is never modified after creation.
type Booking struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user"`
	EventID     string    `json:"event"`
	TicketID    string    `json:"ticketId"`
	Count       int       `json:"count"`
	TotalCost   int64     `json:"totalCost"`
	BookingDate time.Time `json:"bookingDate"`
}

// NewBooking is what the ledger hands to a store for an atomic
// check-and-debit. The store computes the cost from the price it locks.
type NewBooking struct {
	UserID   string
	EventID  string
	TicketID string
	Count    int
}

// User is an account known to the identity provider.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EventSummary is the event projection joined onto bookings. Stores fill
// only the fields a given listing exposes.
type EventSummary struct {
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Location string    `json:"location,omitempty"`
	Image    string    `json:"image,omitempty"`
}

// UserSummary is the user projection joined onto bookings.
type UserSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookingView is a booking joined with projections of its event and user.
// Event is nil when the event has since been deleted.
type BookingView struct {
	ID          string        `json:"id"`
	TicketID    string        `json:"ticketId"`
	Count       int           `json:"count"`
	TotalCost   int64         `json:"totalCost"`
	BookingDate time.Time     `json:"bookingDate"`
	UserID      string        `json:"-"`
	Event       *EventSummary `json:"event"`
	User        *UserSummary  `json:"user,omitempty"`
}

// VerifiedTicket is everything the public verify endpoint discloses.
type VerifiedTicket struct {
	TicketID  string       `json:"ticketId"`
	Count     int          `json:"count"`
	TotalCost int64        `json:"totalCost"`
	Event     EventSummary `json:"event"`
	User      UserSummary  `json:"user"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

// MessageResponse is a plain confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Message string `json:"message"`
}
