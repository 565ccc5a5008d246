// Package docstore implements the repository contracts on MongoDB.
//
// Booking needs multi-document transactions, so the server must run as a
// replica set (a single-node one is enough).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/config"
	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

var (
	_ repository.EventStore   = (*Store)(nil)
	_ repository.BookingStore = (*Store)(nil)
	_ repository.UserStore    = (*Store)(nil)
)

const (
	eventsCollection   = "events"
	bookingsCollection = "bookings"
	usersCollection    = "users"
)

type eventDoc struct {
	ID               primitive.ObjectID `bson:"_id"`
	Title            string             `bson:"title"`
	Description      string             `bson:"description"`
	Date             time.Time          `bson:"date"`
	Location         string             `bson:"location"`
	Price            int64              `bson:"price"`
	Image            string             `bson:"image"`
	TotalTickets     int                `bson:"totalTickets"`
	AvailableTickets int                `bson:"availableTickets"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

func (d eventDoc) model() model.Event {
	return model.Event{
		ID:               d.ID.Hex(),
		Title:            d.Title,
		Description:      d.Description,
		Date:             d.Date.UTC(),
		Location:         d.Location,
		Price:            d.Price,
		Image:            d.Image,
		TotalTickets:     d.TotalTickets,
		AvailableTickets: d.AvailableTickets,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

type bookingDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	User        primitive.ObjectID `bson:"user"`
	Event       primitive.ObjectID `bson:"event"`
	TicketID    string             `bson:"ticketId"`
	Count       int                `bson:"count"`
	TotalCost   int64              `bson:"totalCost"`
	BookingDate time.Time          `bson:"bookingDate"`
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	IsAdmin      bool               `bson:"isAdmin"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

func (d userDoc) model() model.User {
	return model.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		IsAdmin:      d.IsAdmin,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// bookingRow is a booking with its $lookup results.
type bookingRow struct {
	bookingDoc `bson:",inline"`
	Events     []eventDoc `bson:"eventDocs"`
	Users      []userDoc  `bson:"userDocs"`
}

func (r bookingRow) view(fullEvent bool) model.BookingView {
	v := model.BookingView{
		ID:          r.ID.Hex(),
		TicketID:    r.TicketID,
		Count:       r.Count,
		TotalCost:   r.TotalCost,
		BookingDate: r.BookingDate.UTC(),
		UserID:      r.User.Hex(),
	}
	if len(r.Events) > 0 {
		e := r.Events[0]
		v.Event = &model.EventSummary{Title: e.Title, Date: e.Date.UTC()}
		if fullEvent {
			v.Event.Location = e.Location
			v.Event.Image = e.Image
		}
	}
	if len(r.Users) > 0 {
		v.User = &model.UserSummary{Name: r.Users[0].Name, Email: r.Users[0].Email}
	}
	return v
}

// Store is a MongoDB-backed implementation of the three stores.
type Store struct {
	client   *mongo.Client
	events   *mongo.Collection
	bookings *mongo.Collection
	users    *mongo.Collection
}

// Connect opens a client for conf and pings the primary.
func Connect(ctx context.Context, conf config.MongoConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	zap.L().Info("connected to mongodb", zap.String("database", conf.Database))
	return client, nil
}

// New returns a store over the named database.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		events:   db.Collection(eventsCollection),
		bookings: db.Collection(bookingsCollection),
		users:    db.Collection(usersCollection),
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	_, err = s.bookings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ticketId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "bookingDate", Value: -1}}},
		{Keys: bson.D{{Key: "event", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create bookings indexes: %w", err)
	}

	_, err = s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create events indexes: %w", err)
	}
	return nil
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent inserts e under a new ObjectID.
func (s *Store) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := eventDoc{
		ID:               primitive.NewObjectID(),
		Title:            e.Title,
		Description:      e.Description,
		Date:             e.Date,
		Location:         e.Location,
		Price:            e.Price,
		Image:            e.Image,
		TotalTickets:     e.TotalTickets,
		AvailableTickets: e.AvailableTickets,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return doc.model(), nil
}

// ListEvents returns all events, newest first.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	cur, err := s.events.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	events := make([]model.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.model())
	}
	return events, nil
}

// GetEvent returns repository.ErrNotFound for unknown or malformed ids.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Event{}, repository.ErrNotFound
	}
	return s.findEvent(ctx, oid)
}

func (s *Store) findEvent(ctx context.Context, oid primitive.ObjectID) (model.Event, error) {
	var doc eventDoc
	if err := s.events.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Event{}, repository.ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	return doc.model(), nil
}

// UpdateEvent reads, patches and replaces the event in one transaction. A
// booking committed in between makes the replace conflict and the driver
// retries the whole function against the new inventory.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch model.EventPatch) (model.Event, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Event{}, repository.ErrNotFound
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return model.Event{}, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		current, err := s.findEvent(sc, oid)
		if err != nil {
			return nil, err
		}

		updated, err := current.Apply(patch)
		if err != nil {
			return nil, err
		}
		updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

		_, err = s.events.UpdateByID(sc, oid, bson.M{"$set": bson.M{
			"title":            updated.Title,
			"description":      updated.Description,
			"date":             updated.Date,
			"location":         updated.Location,
			"price":            updated.Price,
			"image":            updated.Image,
			"totalTickets":     updated.TotalTickets,
			"availableTickets": updated.AvailableTickets,
			"updatedAt":        updated.UpdatedAt,
		}})
		if err != nil {
			return nil, fmt.Errorf("update event: %w", err)
		}
		return updated, nil
	})
	if err != nil {
		return model.Event{}, err
	}
	return res.(model.Event), nil
}

// DeleteEvent removes the event document; bookings are left in place.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repository.ErrNotFound
	}

	res, err := s.events.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── Bookings ─────────────────────────────────────────────────────────────────

// Book debits the inventory with a conditional $inc, so the check and the
// debit are one atomic document update, then inserts the booking in the
// same transaction. A duplicate ticket id aborts the transaction and the
// debit with it.
func (s *Store) Book(ctx context.Context, nb model.NewBooking) (model.Booking, error) {
	eid, err := primitive.ObjectIDFromHex(nb.EventID)
	if err != nil {
		return model.Booking{}, repository.ErrNotFound
	}
	uid, err := primitive.ObjectIDFromHex(nb.UserID)
	if err != nil {
		return model.Booking{}, fmt.Errorf("invalid user id %q", nb.UserID)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return model.Booking{}, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		now := time.Now().UTC().Truncate(time.Millisecond)

		var before eventDoc
		err := s.events.FindOneAndUpdate(sc,
			bson.M{"_id": eid, "availableTickets": bson.M{"$gte": nb.Count}},
			bson.M{
				"$inc": bson.M{"availableTickets": -nb.Count},
				"$set": bson.M{"updatedAt": now},
			},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, err := s.events.CountDocuments(sc, bson.M{"_id": eid})
			if err != nil {
				return nil, fmt.Errorf("count events: %w", err)
			}
			if n == 0 {
				return nil, repository.ErrNotFound
			}
			return nil, repository.ErrInsufficientTickets
		}
		if err != nil {
			return nil, fmt.Errorf("debit availableTickets: %w", err)
		}

		doc := bookingDoc{
			ID:          primitive.NewObjectID(),
			User:        uid,
			Event:       eid,
			TicketID:    nb.TicketID,
			Count:       nb.Count,
			TotalCost:   before.model().Cost(nb.Count),
			BookingDate: now,
		}
		if _, err := s.bookings.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, repository.ErrDuplicateTicketID
			}
			return nil, fmt.Errorf("insert booking: %w", err)
		}
		return doc, nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	doc := res.(bookingDoc)
	return model.Booking{
		ID:          doc.ID.Hex(),
		UserID:      nb.UserID,
		EventID:     nb.EventID,
		TicketID:    doc.TicketID,
		Count:       doc.Count,
		TotalCost:   doc.TotalCost,
		BookingDate: doc.BookingDate,
	}, nil
}

func lookup(from, localField, as string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.M{
		"from":         from,
		"localField":   localField,
		"foreignField": "_id",
		"as":           as,
	}}}
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bookingRow, error) {
	cur, err := s.bookings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate bookings: %w", err)
	}

	var rows []bookingRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return rows, nil
}

// ListByUser returns the user's bookings, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]model.BookingView, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, nil
	}

	rows, err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": uid}}},
		{{Key: "$sort", Value: bson.D{{Key: "bookingDate", Value: -1}, {Key: "_id", Value: -1}}}},
		lookup(eventsCollection, "event", "eventDocs"),
	})
	if err != nil {
		return nil, err
	}

	views := make([]model.BookingView, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.view(true))
	}
	return views, nil
}

// ListAll returns every booking, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]model.BookingView, error) {
	rows, err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "bookingDate", Value: 1}, {Key: "_id", Value: 1}}}},
		lookup(usersCollection, "user", "userDocs"),
		lookup(eventsCollection, "event", "eventDocs"),
	})
	if err != nil {
		return nil, err
	}

	views := make([]model.BookingView, 0, len(rows))
	for _, r := range rows {
		v := r.view(false)
		if v.User == nil {
			v.User = &model.UserSummary{}
		}
		views = append(views, v)
	}
	return views, nil
}

// FindByTicketID returns the booking with its event and user projections.
func (s *Store) FindByTicketID(ctx context.Context, ticketID string) (model.BookingView, error) {
	rows, err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ticketId": ticketID}}},
		{{Key: "$limit", Value: 1}},
		lookup(usersCollection, "user", "userDocs"),
		lookup(eventsCollection, "event", "eventDocs"),
	})
	if err != nil {
		return model.BookingView{}, err
	}
	if len(rows) == 0 {
		return model.BookingView{}, repository.ErrNotFound
	}

	v := rows[0].view(true)
	if v.User == nil {
		v.User = &model.UserSummary{}
	}
	return v, nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

// CreateUser inserts u; the unique email index yields repository.ErrEmailExists.
func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Name:         u.Name,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, repository.ErrEmailExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.model(), nil
}

// FindUserByID returns the user or repository.ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, id string) (model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.User{}, repository.ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// FindUserByEmail looks the user up by lower-cased email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.User{}, repository.ErrNotFound
		}
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.model(), nil
}
