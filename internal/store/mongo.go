package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"riseready-notifications/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	notificationsCollection = "notifications"
	usersCollection         = "users"
)

// MongoStore implements Backend on the document store the web app writes to.
// Ids created by the app are ObjectIDs; they travel through the pipeline as
// hex strings and are converted back at the query boundary.
type MongoStore struct {
	db            *mongo.Database
	notifications *mongo.Collection
	users         *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:            db,
		notifications: db.Collection(notificationsCollection),
		users:         db.Collection(usersCollection),
	}
}

// EnsureIndexes creates the indexes the claim filter relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sent", Value: 1}, {Key: "claimedId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "claimedId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}
	return nil
}

type mongoNotification struct {
	ID        any        `bson:"_id"`
	UserID    any        `bson:"userId"`
	Kind      string     `bson:"type"`
	Title     string     `bson:"title"`
	Message   string     `bson:"message"`
	Link      string     `bson:"link,omitempty"`
	Priority  string     `bson:"priority"`
	CreatedAt time.Time  `bson:"createdAt"`
	Sent      bool       `bson:"sent"`
	SentAt    *time.Time `bson:"sentAt,omitempty"`
	ClaimedID *string    `bson:"claimedId,omitempty"`
	ClaimedAt *time.Time `bson:"claimedAt,omitempty"`
}

func (d mongoNotification) toModel() models.Notification {
	return models.Notification{
		ID:        idString(d.ID),
		UserID:    idString(d.UserID),
		Kind:      models.Kind(d.Kind),
		Title:     d.Title,
		Message:   d.Message,
		Link:      d.Link,
		Priority:  models.Priority(d.Priority),
		CreatedAt: d.CreatedAt,
		Sent:      d.Sent,
		SentAt:    d.SentAt,
		ClaimedID: d.ClaimedID,
		ClaimedAt: d.ClaimedAt,
	}
}

type mongoUser struct {
	ID       any    `bson:"_id"`
	Email    string `bson:"email"`
	Phone    string `bson:"phone,omitempty"`
	Settings struct {
		Notifications struct {
			Reminders bool `bson:"reminders"`
			SMS       bool `bson:"sms"`
		} `bson:"notifications"`
	} `bson:"settings"`
}

func (s *MongoStore) FindDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	filter := bson.M{
		"sent":      false,
		"claimedId": nil,
		"createdAt": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})

	cursor, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find due notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID any `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode due id: %w", err)
		}
		ids = append(ids, idString(doc.ID))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate due notifications: %w", err)
	}
	return ids, nil
}

func (s *MongoStore) ClaimMany(ctx context.Context, ids []string, token string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, idValue(id))
	}

	filter := bson.M{
		"_id":       bson.M{"$in": keys},
		"sent":      false,
		"claimedId": nil,
	}
	update := bson.M{"$set": bson.M{"claimedId": token, "claimedAt": at}}

	res, err := s.notifications.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("claim notifications: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) FindClaimed(ctx context.Context, token string) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := s.notifications.Find(ctx, bson.M{"claimedId": token}, opts)
	if err != nil {
		return nil, fmt.Errorf("find claimed notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoNotification
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode claimed notifications: %w", err)
	}

	out := make([]models.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (s *MongoStore) MarkSent(ctx context.Context, id, token string, at time.Time) error {
	filter := bson.M{"_id": idValue(id), "claimedId": token, "sent": false}
	update := bson.M{"$set": bson.M{"sent": true, "sentAt": at}}

	res, err := s.notifications.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	filter := bson.M{
		"sent":      false,
		"claimedId": bson.M{"$ne": nil},
		"claimedAt": bson.M{"$lt": olderThan},
	}
	update := bson.M{"$unset": bson.M{"claimedId": "", "claimedAt": ""}}

	res, err := s.notifications.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) ReleaseClaims(ctx context.Context, ids []string, token string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, idValue(id))
	}

	filter := bson.M{"_id": bson.M{"$in": keys}, "claimedId": token, "sent": false}
	update := bson.M{"$unset": bson.M{"claimedId": "", "claimedAt": ""}}

	res, err := s.notifications.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) Create(ctx context.Context, n *models.Notification) error {
	if err := prepareNew(n, func() string { return primitive.NewObjectID().Hex() }); err != nil {
		return err
	}

	doc := mongoNotification{
		ID:        idValue(n.ID),
		UserID:    idValue(n.UserID),
		Kind:      string(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		Priority:  string(n.Priority),
		CreatedAt: n.CreatedAt,
		Sent:      n.Sent,
		SentAt:    n.SentAt,
		ClaimedID: n.ClaimedID,
		ClaimedAt: n.ClaimedAt,
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var doc mongoUser
	err := s.users.FindOne(ctx, bson.M{"_id": idValue(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u := &models.User{ID: idString(doc.ID), Email: doc.Email, Phone: doc.Phone}
	u.Settings.Notifications.Reminders = doc.Settings.Notifications.Reminders
	u.Settings.Notifications.SMS = doc.Settings.Notifications.SMS
	return u, nil
}

func (s *MongoStore) SaveUser(ctx context.Context, u *models.User) error {
	update := bson.M{"$set": bson.M{
		"email":                            u.Email,
		"phone":                            u.Phone,
		"settings.notifications.reminders": u.Settings.Notifications.Reminders,
		"settings.notifications.sms":       u.Settings.Notifications.SMS,
	}}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": idValue(u.ID)}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

// idValue maps a pipeline id back to its stored form.
func idValue(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
