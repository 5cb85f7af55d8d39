package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// MongoStore keeps messages in one collection and block relationships in
// another. It implements MessageStore and BlockChecker.
type MongoStore struct {
	client   *mongo.Client
	messages *mongo.Collection
	blocks   *mongo.Collection
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, errors.Wrap(err, "mongo ping")
	}
	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		messages: db.Collection("messages"),
		blocks:   db.Collection("blocks"),
	}
	s.ensureIndexes(ctx)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) {
	// Best effort: an index failure slows queries, it doesn't break them.
	_, _ = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "delivered", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	_, _ = s.blocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "blocker", Value: 1}, {Key: "blocked", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
}

func (s *MongoStore) SaveMessage(ctx context.Context, m *Message) error {
	_, err := s.messages.InsertOne(ctx, m)
	return errors.Wrap(err, "insert message")
}

func (s *MongoStore) RoomHistory(ctx context.Context, room string, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	// Newest N, returned oldest-first for replay.
	cur, err := s.messages.Find(ctx,
		bson.M{"kind": KindRoom, "room": room},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find history")
	}
	var out []Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode history")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MongoStore) PendingDirect(ctx context.Context, userID string) ([]Message, error) {
	cur, err := s.messages.Find(ctx,
		bson.M{"to": userID, "delivered": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "find pending")
	}
	var out []Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode pending")
	}
	return out, nil
}

func (s *MongoStore) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{"delivered": true}})
	return errors.Wrap(err, "mark delivered")
}

func (s *MongoStore) MarkSeen(ctx context.Context, id, userID string) error {
	_, err := s.messages.UpdateByID(ctx, id, bson.M{"$addToSet": bson.M{"seen_by": userID}})
	return errors.Wrap(err, "mark seen")
}

func (s *MongoStore) Star(ctx context.Context, id, userID string) error {
	_, err := s.messages.UpdateByID(ctx, id, bson.M{"$addToSet": bson.M{"starred_by": userID}})
	return errors.Wrap(err, "star message")
}

func (s *MongoStore) Pin(ctx context.Context, id string) error {
	_, err := s.messages.UpdateByID(ctx, id, bson.M{"$set": bson.M{"pinned": true}})
	return errors.Wrap(err, "pin message")
}

// IsBlocked is true when either user has blocked the other.
func (s *MongoStore) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	n, err := s.blocks.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"blocker": a, "blocked": b},
		bson.M{"blocker": b, "blocked": a},
	}})
	if err != nil {
		return false, errors.Wrap(err, "count blocks")
	}
	return n > 0, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
