package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/service"
)

// Services are the dependencies of the HTTP API.
type Services struct {
	Events   *service.EventService
	Bookings *service.BookingService
	Auth     *service.AuthService
}

// NewRouter builds the chi router with the global middleware stack and
// every API route.
func NewRouter(svcs Services, allowedOrigins []string, log *zap.Logger) http.Handler {
	events := NewEventHandler(svcs.Events, log)
	bookings := NewBookingHandler(svcs.Bookings, log)
	accounts := NewAuthHandler(svcs.Auth, log)

	authenticated := Authenticated(svcs.Auth, log)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", accounts.Register)
			r.Post("/login", accounts.Login)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", events.ListEvents)
			r.Get("/{id}", events.GetEvent)

			r.Group(func(r chi.Router) {
				r.Use(authenticated, AdminOnly)
				r.Post("/", events.CreateEvent)
				r.Put("/{id}", events.UpdateEvent)
				r.Delete("/{id}", events.DeleteEvent)
			})
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/verify/{ticketId}", bookings.VerifyTicket)

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Post("/", bookings.CreateBooking)
				r.Get("/mine", bookings.ListMyBookings)
				r.Get("/mybookings", bookings.ListMyBookings)
				r.Get("/{ticketId}/qr", bookings.TicketQRCode)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticated, AdminOnly)
				r.Get("/", bookings.ListAllBookings)
			})
		})
	})

	return r
}
