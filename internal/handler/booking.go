package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/auth"
	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/service"
)

const ticketNotFound = "Ticket not found"

// BookingHandler serves the booking ledger.
type BookingHandler struct {
	svc *service.BookingService
	log *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *service.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, log: log}
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	var req model.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid booking data: "+err.Error())
		return
	}
	if req.Count < 1 || req.Count > h.svc.MaxPerBooking() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("You can book between 1 and %d tickets", h.svc.MaxPerBooking()))
		return
	}

	booking, err := h.svc.CreateBooking(r.Context(), caller, req)
	if err != nil {
		respondErr(w, r, h.log, eventNotFound, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListMyBookings handles GET /api/bookings/mine
func (h *BookingHandler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	views, err := h.svc.ListMyBookings(r.Context(), caller)
	if err != nil {
		respondErr(w, r, h.log, ticketNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(views))
}

// ListAllBookings handles GET /api/bookings (admin).
func (h *BookingHandler) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListAllBookings(r.Context())
	if err != nil {
		respondErr(w, r, h.log, ticketNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(views))
}

// VerifyTicket handles GET /api/bookings/verify/{ticketId}
// It is public: door staff scan the QR code without logging in.
func (h *BookingHandler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.svc.VerifyTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		respondErr(w, r, h.log, ticketNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// TicketQRCode handles GET /api/bookings/{ticketId}/qr?size=N
func (h *BookingHandler) TicketQRCode(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFrom(r.Context())

	size := 0
	if s := r.URL.Query().Get("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "size must be an integer")
			return
		}
		size = n
	}

	png, err := h.svc.TicketQRCode(r.Context(), caller, chi.URLParam(r, "ticketId"), size)
	if err != nil {
		respondErr(w, r, h.log, ticketNotFound, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
