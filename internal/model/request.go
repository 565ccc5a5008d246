package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// dateLayouts are the accepted formats for event dates: RFC 3339, and the
// values produced by HTML datetime-local and date inputs.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Upper bounds for event payloads. Together they keep price * count inside
// int64 for any booking an event can hold.
const (
	MaxPrice        int64 = 100_000_000_000
	MaxTotalTickets       = 1_000_000
)

var (
	errInvalidDate   = errors.New("must be an RFC 3339 timestamp or YYYY-MM-DD[THH:MM]")
	errInvalidNumber = errors.New("must be an integer")
)

// wireInt decodes a JSON integer or a string holding one, which is what
// HTML number inputs submit. null and "" leave it unset.
type wireInt struct {
	set bool
	v   int64
}

func (n *wireInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errInvalidNumber
	}
	n.set, n.v = true, v
	return nil
}

// decodeStrict decodes data into dst rejecting unknown fields, which a
// custom UnmarshalJSON would otherwise let through.
func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ParseEventDate parses s using the accepted event date layouts.
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errInvalidDate
}

func validDate(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := ParseEventDate(s)
	return err
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Date         string `json:"date"`
	Location     string `json:"location"`
	Price        int64  `json:"price"`
	Image        string `json:"image"`
	TotalTickets int    `json:"totalTickets"`
}

// UnmarshalJSON accepts price and totalTickets as numbers or numeric strings.
func (req *CreateEventRequest) UnmarshalJSON(data []byte) error {
	type plain CreateEventRequest
	var wire struct {
		plain
		Price        wireInt `json:"price"`
		TotalTickets wireInt `json:"totalTickets"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	*req = CreateEventRequest(wire.plain)
	req.Price = wire.Price.v
	req.TotalTickets = int(wire.TotalTickets.v)
	return nil
}

// Validate checks the required fields and the price and ticket bounds.
func (req *CreateEventRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&req.Description, validation.Required, validation.Length(1, 5000)),
		validation.Field(&req.Date, validation.Required, validation.By(validDate)),
		validation.Field(&req.Location, validation.Required, validation.Length(1, 200)),
		validation.Field(&req.Price, validation.Min(0), validation.Max(MaxPrice)),
		validation.Field(&req.Image, validation.Required, is.URL),
		validation.Field(&req.TotalTickets, validation.Min(0), validation.Max(MaxTotalTickets)),
	)
}

// Event builds the event described by the request. Callers validate first.
func (req *CreateEventRequest) Event() Event {
	date, _ := ParseEventDate(req.Date)
	return Event{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		Date:             date,
		Location:         strings.TrimSpace(req.Location),
		Price:            req.Price,
		Image:            strings.TrimSpace(req.Image),
		TotalTickets:     req.TotalTickets,
		AvailableTickets: req.TotalTickets,
	}
}

// UpdateEventRequest is the payload for editing an event. Absent, empty
// and zero fields leave the stored value unchanged.
type UpdateEventRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Date         *string `json:"date"`
	Location     *string `json:"location"`
	Price        *int64  `json:"price"`
	Image        *string `json:"image"`
	TotalTickets *int    `json:"totalTickets"`
}

// UnmarshalJSON accepts price and totalTickets as numbers or numeric strings.
func (req *UpdateEventRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateEventRequest
	var wire struct {
		plain
		Price        wireInt `json:"price"`
		TotalTickets wireInt `json:"totalTickets"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	*req = UpdateEventRequest(wire.plain)
	if wire.Price.set {
		req.Price = &wire.Price.v
	}
	if wire.TotalTickets.set {
		total := int(wire.TotalTickets.v)
		req.TotalTickets = &total
	}
	return nil
}

// Validate checks the fields that are present.
func (req *UpdateEventRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Title, validation.Length(0, 200)),
		validation.Field(&req.Date, validation.By(func(v interface{}) error {
			if p, ok := v.(*string); ok && p != nil {
				return validDate(*p)
			}
			return nil
		})),
		validation.Field(&req.Location, validation.Length(0, 200)),
		validation.Field(&req.Price, validation.Min(0), validation.Max(MaxPrice)),
		validation.Field(&req.Image, is.URL),
		validation.Field(&req.TotalTickets, validation.Min(0), validation.Max(MaxTotalTickets)),
	)
}

// Patch converts the request into an EventPatch. Callers validate first.
func (req *UpdateEventRequest) Patch() EventPatch {
	p := EventPatch{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Price:        req.Price,
		Image:        req.Image,
		TotalTickets: req.TotalTickets,
	}
	if req.Date != nil && *req.Date != "" {
		if d, err := ParseEventDate(*req.Date); err == nil {
			p.Date = &d
		}
	}
	return p
}

// CreateBookingRequest is the payload for booking tickets.
type CreateBookingRequest struct {
	EventID string `json:"eventId"`
	Count   int    `json:"count"`
}

// Validate checks the request against the per-booking ticket cap.
func (req *CreateBookingRequest) Validate(maxPerBooking int) error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.EventID, validation.Required),
		validation.Field(&req.Count, validation.Required, validation.Min(1), validation.Max(maxPerBooking)),
	)
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks name, email and password length.
func (req *RegisterRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&req.Email, validation.Required, is.Email),
		// bcrypt ignores input past 72 bytes.
		validation.Field(&req.Password, validation.Required, validation.Length(6, 72)),
	)
}

// LoginRequest is the payload for exchanging credentials for a token.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both credentials are present.
func (req *LoginRequest) Validate() error {
	return validation.ValidateStruct(
		req,
		validation.Field(&req.Email, validation.Required, is.Email),
		validation.Field(&req.Password, validation.Required),
	)
}
