// Package loadtest drives concurrent bookings against a running API and
// checks that the event was not oversold and no ticket id repeated.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/model"
)

// soldOutMessage is the API's answer when an event cannot cover a booking.
const soldOutMessage = "Not enough tickets available"

// Config describes one run. Count is the tickets per booking request.
type Config struct {
	BaseURL     string
	EventID     string
	Users       int
	Requests    int
	Concurrency int
	Count       int
	Password    string
}

// Result summarizes one run.
type Result struct {
	Requests        int
	Created         int
	SoldOut         int
	Rejected        int // other 4xx, e.g. a count above the per-booking cap
	Failed          int
	TicketsSold     int
	Duplicates      int
	AvailableBefore int
	AvailableAfter  int
	Elapsed         time.Duration
	Latencies       []time.Duration
}

// Oversold reports whether the event's inventory moved by a different
// amount than the tickets the run booked.
func (r Result) Oversold() bool {
	return r.AvailableAfter < 0 || r.AvailableBefore-r.AvailableAfter != r.TicketsSold
}

// Percentile returns the p-th latency percentile (0 < p <= 100).
func (r Result) Percentile(p int) time.Duration {
	if len(r.Latencies) == 0 {
		return 0
	}
	i := len(r.Latencies) * p / 100
	if i >= len(r.Latencies) {
		i = len(r.Latencies) - 1
	}
	return r.Latencies[i]
}

// Runner issues the requests of one run.
type Runner struct {
	client *http.Client
	conf   Config
	log    *zap.Logger
}

// NewRunner returns a Runner, filling zero values in conf with defaults.
func NewRunner(client *http.Client, conf Config, log *zap.Logger) *Runner {
	if conf.Users < 1 {
		conf.Users = 1
	}
	if conf.Concurrency < 1 {
		conf.Concurrency = 1
	}
	if conf.Count < 1 {
		conf.Count = 1
	}
	if conf.Password == "" {
		conf.Password = "loadtest-password"
	}
	return &Runner{client: client, conf: conf, log: log}
}

// Run authenticates the users, then books in parallel. Setup time is not
// part of Result.Elapsed.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	tokens := make([]string, 0, r.conf.Users)
	for i := 0; i < r.conf.Users; i++ {
		token, err := r.authenticate(ctx, i)
		if err != nil {
			return Result{}, fmt.Errorf("authenticate user %d: %w", i, err)
		}
		tokens = append(tokens, token)
	}
	r.log.Info("users authenticated", zap.Int("users", len(tokens)))

	before, err := r.event(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{AvailableBefore: before.AvailableTickets}
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
		jobs = make(chan int)
	)

	start := time.Now()
	for w := 0; w < r.conf.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				t0 := time.Now()
				status, ticketID, msg, err := r.book(ctx, tokens[n%len(tokens)])
				latency := time.Since(t0)

				mu.Lock()
				res.Requests++
				res.Latencies = append(res.Latencies, latency)
				switch {
				case err != nil:
					res.Failed++
					r.log.Debug("booking request failed", zap.Error(err))
				case status == http.StatusCreated:
					res.Created++
					res.TicketsSold += r.conf.Count
					if seen[ticketID] {
						res.Duplicates++
					}
					seen[ticketID] = true
				case status == http.StatusBadRequest && msg == soldOutMessage:
					res.SoldOut++
				case status >= 400 && status < 500:
					res.Rejected++
					r.log.Debug("booking rejected", zap.Int("status", status), zap.String("message", msg))
				default:
					res.Failed++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for n := 0; n < r.conf.Requests; n++ {
		select {
		case jobs <- n:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	res.Elapsed = time.Since(start)

	sort.Slice(res.Latencies, func(i, j int) bool { return res.Latencies[i] < res.Latencies[j] })

	after, err := r.event(ctx)
	if err != nil {
		return res, err
	}
	res.AvailableAfter = after.AvailableTickets

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// authenticate registers loadtest user i, or logs in when the account
// already exists from an earlier run.
func (r *Runner) authenticate(ctx context.Context, i int) (string, error) {
	email := fmt.Sprintf("loadtest_%d@example.com", i+1)

	var res model.AuthResult
	status, _, err := r.post(ctx, "/api/auth/register", "", model.RegisterRequest{
		Name:     fmt.Sprintf("Load Test %d", i+1),
		Email:    email,
		Password: r.conf.Password,
	}, &res)
	if err != nil {
		return "", err
	}
	if status == http.StatusCreated {
		return res.Token, nil
	}

	status, msg, err := r.post(ctx, "/api/auth/login", "", model.LoginRequest{Email: email, Password: r.conf.Password}, &res)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login %s: status %d: %s", email, status, msg)
	}
	return res.Token, nil
}

// book returns the status, the ticket id on success and the error message
// otherwise.
func (r *Runner) book(ctx context.Context, token string) (int, string, string, error) {
	var b model.Booking
	status, msg, err := r.post(ctx, "/api/bookings", token, model.CreateBookingRequest{
		EventID: r.conf.EventID,
		Count:   r.conf.Count,
	}, &b)
	return status, b.TicketID, msg, err
}

func (r *Runner) event(ctx context.Context) (model.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.conf.BaseURL+"/api/events/"+r.conf.EventID, nil)
	if err != nil {
		return model.Event{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Event{}, fmt.Errorf("get event: status %d", resp.StatusCode)
	}
	var e model.Event
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return model.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// post sends body as JSON and decodes a 2xx response into out. For other
// statuses it returns the message of the error body.
func (r *Runner) post(ctx context.Context, path, token string, body, out any) (int, string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.conf.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, "", nil
	}

	var e model.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, e.Message, nil
}
