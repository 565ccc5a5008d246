package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEventApplyKeepsEmptyFields(t *testing.T) {
	e := Event{Title: "Jazz Night", Location: "Hall A", Price: 10, TotalTickets: 100, AvailableTickets: 100}

	got, err := e.Apply(EventPatch{
		Title:    ptr(""),
		Location: ptr("Hall B"),
		Price:    ptr(int64(0)),
	})
	require.NoError(t, err)

	assert.Equal(t, "Jazz Night", got.Title)
	assert.Equal(t, "Hall B", got.Location)
	assert.Equal(t, int64(10), got.Price)
	assert.Equal(t, 100, got.AvailableTickets)
}

func TestEventApplyTotalTickets(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		available     int
		newTotal      int
		wantTotal     int
		wantAvailable int
		wantErr       error
	}{
		{name: "grow keeps sold", total: 10, available: 4, newTotal: 20, wantTotal: 20, wantAvailable: 14},
		{name: "shrink keeps sold", total: 10, available: 4, newTotal: 8, wantTotal: 8, wantAvailable: 2},
		{name: "shrink to sold", total: 10, available: 4, newTotal: 6, wantTotal: 6, wantAvailable: 0},
		{name: "below sold", total: 10, available: 4, newTotal: 5, wantErr: ErrTotalBelowSold},
		{name: "unchanged", total: 10, available: 4, newTotal: 10, wantTotal: 10, wantAvailable: 4},
		{name: "zero means keep", total: 10, available: 4, newTotal: 0, wantTotal: 10, wantAvailable: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{TotalTickets: tt.total, AvailableTickets: tt.available}
			got, err := e.Apply(EventPatch{TotalTickets: ptr(tt.newTotal)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, got.TotalTickets)
			assert.Equal(t, tt.wantAvailable, got.AvailableTickets)
		})
	}
}

func TestEventCost(t *testing.T) {
	e := Event{Price: 1250}
	assert.Equal(t, int64(3750), e.Cost(3))
}

func TestParseEventDate(t *testing.T) {
	want := time.Date(2026, 11, 3, 19, 30, 0, 0, time.UTC)

	for _, in := range []string{"2026-11-03T19:30:00Z", "2026-11-03T19:30:00", "2026-11-03T19:30", " 2026-11-03T20:30:00+01:00 "} {
		got, err := ParseEventDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	got, err := ParseEventDate("2026-11-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseEventDate("03/11/2026")
	assert.Error(t, err)
}

func validCreateEvent() CreateEventRequest {
	return CreateEventRequest{
		Title:        "Jazz Night",
		Description:  "Live quartet",
		Date:         "2026-11-03T19:30",
		Location:     "Hall A",
		Price:        1500,
		Image:        "https://img.example.com/jazz.png",
		TotalTickets: 120,
	}
}

func TestCreateEventRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *CreateEventRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *CreateEventRequest) {}},
		{name: "free event", mutate: func(r *CreateEventRequest) { r.Price = 0 }},
		{name: "missing title", mutate: func(r *CreateEventRequest) { r.Title = "" }, wantErr: true},
		{name: "bad date", mutate: func(r *CreateEventRequest) { r.Date = "tomorrow" }, wantErr: true},
		{name: "negative price", mutate: func(r *CreateEventRequest) { r.Price = -1 }, wantErr: true},
		{name: "negative tickets", mutate: func(r *CreateEventRequest) { r.TotalTickets = -5 }, wantErr: true},
		{name: "price at cap", mutate: func(r *CreateEventRequest) { r.Price = MaxPrice }},
		{name: "price above cap", mutate: func(r *CreateEventRequest) { r.Price = MaxPrice + 1 }, wantErr: true},
		{name: "price near int64 max", mutate: func(r *CreateEventRequest) { r.Price = 1 << 62 }, wantErr: true},
		{name: "tickets above cap", mutate: func(r *CreateEventRequest) { r.TotalTickets = MaxTotalTickets + 1 }, wantErr: true},
		{name: "image not url", mutate: func(r *CreateEventRequest) { r.Image = "not a url" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateEvent()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateEventRequestEvent(t *testing.T) {
	req := validCreateEvent()
	e := req.Event()

	assert.Equal(t, "Jazz Night", e.Title)
	assert.Equal(t, 120, e.TotalTickets)
	assert.Equal(t, 120, e.AvailableTickets)
	assert.Equal(t, time.Date(2026, 11, 3, 19, 30, 0, 0, time.UTC), e.Date)
}

func TestUpdateEventRequest(t *testing.T) {
	req := UpdateEventRequest{Date: ptr("2027-01-02"), Price: ptr(int64(900))}
	require.NoError(t, req.Validate())

	p := req.Patch()
	require.NotNil(t, p.Date)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), *p.Date)
	assert.Equal(t, int64(900), *p.Price)
	assert.Nil(t, p.Title)

	bad := UpdateEventRequest{Date: ptr("soon")}
	assert.Error(t, bad.Validate())

	neg := UpdateEventRequest{TotalTickets: ptr(-1)}
	assert.Error(t, neg.Validate())

	huge := UpdateEventRequest{Price: ptr(int64(1 << 62))}
	assert.Error(t, huge.Validate())
}

func TestCreateBookingRequestValidate(t *testing.T) {
	assert.NoError(t, (&CreateBookingRequest{EventID: "e1", Count: 5}).Validate(5))
	assert.Error(t, (&CreateBookingRequest{EventID: "e1", Count: 6}).Validate(5))
	assert.Error(t, (&CreateBookingRequest{EventID: "e1", Count: 0}).Validate(5))
	assert.Error(t, (&CreateBookingRequest{EventID: "", Count: 1}).Validate(5))
}

func TestRegisterRequestValidate(t *testing.T) {
	assert.NoError(t, (&RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"}).Validate())
	assert.Error(t, (&RegisterRequest{Name: "Ada", Email: "ada", Password: "secret1"}).Validate())
	assert.Error(t, (&RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "123"}).Validate())
	assert.Error(t, (&LoginRequest{Email: "ada@example.com"}).Validate())
}

func TestCostStaysInRangeAtBounds(t *testing.T) {
	e := Event{Price: MaxPrice}
	cost := e.Cost(MaxTotalTickets)
	assert.Positive(t, cost)
	assert.Equal(t, MaxPrice*MaxTotalTickets, cost)
	assert.Less(t, MaxPrice, int64(math.MaxInt64/MaxTotalTickets))
}

func TestCreateEventRequestNumericStrings(t *testing.T) {
	var req CreateEventRequest
	err := json.Unmarshal([]byte(`{
		"title": "Jazz Night", "description": "Live quartet", "date": "2026-11-03T19:30",
		"location": "Hall A", "price": "1500", "image": "https://img.example.com/jazz.png",
		"totalTickets": "120"
	}`), &req)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), req.Price)
	assert.Equal(t, 120, req.TotalTickets)
	assert.Equal(t, "Jazz Night", req.Title)
	require.NoError(t, req.Validate())

	require.NoError(t, json.Unmarshal([]byte(`{"title": "x", "price": 15, "totalTickets": 3}`), &req))
	assert.Equal(t, int64(15), req.Price)
	assert.Equal(t, 3, req.TotalTickets)

	assert.Error(t, json.Unmarshal([]byte(`{"price": "12.50"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"price": "lots"}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"price": 1, "organizer": "me"}`), &req), "unknown fields stay rejected")
}

func TestUpdateEventRequestNumericStrings(t *testing.T) {
	var req UpdateEventRequest
	require.NoError(t, json.Unmarshal([]byte(`{"price": "900", "totalTickets": "40"}`), &req))
	require.NotNil(t, req.Price)
	require.NotNil(t, req.TotalTickets)
	assert.Equal(t, int64(900), *req.Price)
	assert.Equal(t, 40, *req.TotalTickets)

	var keep UpdateEventRequest
	require.NoError(t, json.Unmarshal([]byte(`{"title": "New", "price": "", "totalTickets": null}`), &keep))
	assert.Nil(t, keep.Price, "an empty input keeps the stored value")
	assert.Nil(t, keep.TotalTickets)
	require.NotNil(t, keep.Title)
	assert.Equal(t, "New", *keep.Title)

	assert.Error(t, json.Unmarshal([]byte(`{"price": "1", "extra": true}`), &keep))
}
