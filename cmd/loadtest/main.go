// cmd/loadtest fires concurrent bookings at one event and reports whether
// the API kept its inventory consistent.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/loadtest"
	"github.com/jk-7-dev/event-manager/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		conf    loadtest.Config
		timeout time.Duration
		verbose bool
	)

	flagSet := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	flagSet.StringVar(&conf.BaseURL, "url", "http://localhost:5000", "base URL of the API")
	flagSet.StringVar(&conf.EventID, "event", "", "id of the event to book (required)")
	flagSet.IntVarP(&conf.Users, "users", "u", 10, "number of accounts to spread bookings across")
	flagSet.IntVarP(&conf.Requests, "requests", "n", 1000, "total booking requests")
	flagSet.IntVarP(&conf.Concurrency, "concurrency", "c", 50, "concurrent workers")
	flagSet.IntVar(&conf.Count, "count", 1, "tickets per booking")
	flagSet.StringVar(&conf.Password, "password", "", "password for the load test accounts")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "per-request timeout")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log failed requests")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if conf.EventID == "" {
		flagSet.Usage()
		return errors.New("--event is required")
	}

	env := "production"
	if verbose {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		return err
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        conf.Concurrency,
			MaxIdleConnsPerHost: conf.Concurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Printf("Booking event %s: %d requests, %d workers, %d users\n",
		conf.EventID, conf.Requests, conf.Concurrency, conf.Users)

	res, err := loadtest.NewRunner(client, conf, zap.L()).Run(ctx)
	if err != nil {
		return err
	}
	report(res)

	if res.Oversold() || res.Duplicates > 0 {
		return errors.New("inventory check failed")
	}
	return nil
}

func report(res loadtest.Result) {
	fmt.Println()
	fmt.Println("Results")
	fmt.Printf("  requests:      %d in %s\n", res.Requests, res.Elapsed.Round(time.Millisecond))
	if res.Elapsed > 0 {
		fmt.Printf("  throughput:    %.1f req/s\n", float64(res.Requests)/res.Elapsed.Seconds())
	}
	fmt.Printf("  created:       %d (%d tickets)\n", res.Created, res.TicketsSold)
	fmt.Printf("  sold out:      %d\n", res.SoldOut)
	fmt.Printf("  rejected:      %d\n", res.Rejected)
	fmt.Printf("  failed:        %d\n", res.Failed)
	fmt.Printf("  duplicate ids: %d\n", res.Duplicates)
	fmt.Printf("  available:     %d -> %d\n", res.AvailableBefore, res.AvailableAfter)

	fmt.Println()
	fmt.Println("Latency")
	for _, p := range []int{50, 90, 95, 99} {
		fmt.Printf("  p%d: %s\n", p, res.Percentile(p).Round(time.Microsecond))
	}

	fmt.Println()
	if res.Oversold() {
		fmt.Println("OVERSOLD: inventory moved by a different amount than tickets booked")
	} else {
		fmt.Println("inventory consistent")
	}
}
