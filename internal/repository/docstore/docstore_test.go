package docstore

import (
	"context"
	"flag"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

// testClient is nil when Docker is not reachable; every test then skips.
var testClient *mongo.Client

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		return m.Run()
	}

	pool, err := dockertest.NewPool("")
	if err == nil {
		err = pool.Client.Ping()
	}
	if err != nil {
		log.Printf("docker unavailable, mongo tests skipped: %v", err)
		return m.Run()
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mongo",
		Tag:        "7",
		Cmd:        []string{"--replSet", "rs0", "--bind_ip_all"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("start mongo: %v", err)
		return 1
	}
	defer func() { _ = pool.Purge(resource) }()
	_ = resource.Expire(120)

	// The replica set advertises localhost:27017, which is not the mapped
	// port, so connect directly instead of through discovery.
	uri := fmt.Sprintf("mongodb://localhost:%s/?directConnection=true", resource.GetPort("27017/tcp"))

	ctx := context.Background()
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		err = c.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: bson.M{}}}).Err()
		if err != nil && !isAlreadyInitialized(err) {
			_ = c.Disconnect(ctx)
			return err
		}

		var status bson.M
		if err := c.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&status); err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
		if primary, _ := status["isWritablePrimary"].(bool); !primary {
			_ = c.Disconnect(ctx)
			return fmt.Errorf("replica set has no primary yet")
		}

		testClient = c
		return nil
	})
	if err != nil {
		log.Printf("connect to mongo: %v", err)
		return 1
	}
	defer func() { _ = testClient.Disconnect(context.Background()) }()

	return m.Run()
}

func isAlreadyInitialized(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Name == "AlreadyInitialized"
}

func setup(t *testing.T) *Store {
	t.Helper()
	if testClient == nil {
		t.Skip("mongo not available")
	}

	ctx := context.Background()
	db := fmt.Sprintf("test_%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = testClient.Database(db).Drop(context.Background()) })

	s := New(testClient, db)
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func newEvent(total int, price int64) model.Event {
	return model.Event{
		Title:            "Jazz Night",
		Description:      "Quartet",
		Date:             time.Date(2030, 6, 1, 19, 30, 0, 0, time.UTC),
		Location:         "Blue Room",
		Price:            price,
		Image:            "https://img.example.com/jazz.png",
		TotalTickets:     total,
		AvailableTickets: total,
	}
}

func TestEventCRUD(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	created, err := s.CreateEvent(ctx, newEvent(10, 2500))
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int64(2500), got.Price)
	assert.True(t, created.Date.Equal(got.Date))
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	price := int64(3000)
	updated, err := s.UpdateEvent(ctx, created.ID, model.EventPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), updated.Price)
	assert.Equal(t, "Jazz Night", updated.Title)

	require.NoError(t, s.DeleteEvent(ctx, created.ID))
	assert.ErrorIs(t, s.DeleteEvent(ctx, created.ID), repository.ErrNotFound)

	_, err = s.GetEvent(ctx, "zzz")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBookConcurrentNeverOversells(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	e, err := s.CreateEvent(ctx, newEvent(15, 100))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Book(ctx, model.NewBooking{
				UserID:   u.ID,
				EventID:  e.ID,
				TicketID: fmt.Sprintf("TKT-%d", i),
				Count:    1,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, repository.ErrInsufficientTickets)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 15, succeeded)
	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableTickets)
}

func TestBookErrorsLeaveInventoryUntouched(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	e, err := s.CreateEvent(ctx, newEvent(5, 100))
	require.NoError(t, err)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-A", Count: 2})
	require.NoError(t, err)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-A", Count: 1})
	assert.ErrorIs(t, err, repository.ErrDuplicateTicketID)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-B", Count: 4})
	assert.ErrorIs(t, err, repository.ErrInsufficientTickets)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: "65a000000000000000000000", TicketID: "TKT-C", Count: 1})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableTickets)
}

func TestBookingProjections(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "Ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	e, err := s.CreateEvent(ctx, newEvent(5, 100))
	require.NoError(t, err)

	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-A", Count: 1})
	require.NoError(t, err)
	_, err = s.Book(ctx, model.NewBooking{UserID: u.ID, EventID: e.ID, TicketID: "TKT-B", Count: 2})
	require.NoError(t, err)

	mine, err := s.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "TKT-B", mine[0].TicketID)
	assert.Equal(t, "Blue Room", mine[0].Event.Location)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "TKT-A", all[0].TicketID)
	assert.Equal(t, "ann@example.com", all[0].User.Email)
	assert.Empty(t, all[0].Event.Location)

	v, err := s.FindByTicketID(ctx, "TKT-B")
	require.NoError(t, err)
	assert.Equal(t, int64(200), v.TotalCost)
	assert.Equal(t, "Ann", v.User.Name)

	require.NoError(t, s.DeleteEvent(ctx, e.ID))
	v, err = s.FindByTicketID(ctx, "TKT-B")
	require.NoError(t, err)
	assert.Nil(t, v.Event)

	_, err = s.FindByTicketID(ctx, "TKT-Z")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUsers(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Name: "Ann", Email: "ann@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, model.User{Name: "Ann", Email: "ANN@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	got, err := s.FindUserByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.PasswordHash)
}
