package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

// StreamHistoryRepository persists closed-stream records for the /history
// endpoint and offline inspection of abandonment rates.
type StreamHistoryRepository struct {
	collection *mongo.Collection
}

type closureDoc struct {
	Token     int64   `bson:"_id"`
	MessageID int64   `bson:"messageId"`
	ChatID    int64   `bson:"chatId"`
	Remaining float64 `bson:"remaining"`
	Reason    string  `bson:"reason"`
	ClosedAt  int64   `bson:"closedAt"`
}

func NewStreamHistoryRepository(client *mongo.Client, dbName, collectionName string) *StreamHistoryRepository {
	return &StreamHistoryRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *StreamHistoryRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "closedAt", Value: -1}}},
		{Keys: bson.D{{Key: "messageId", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// Insert upserts by token: a token reaped twice (which the gateway prevents,
// but the write path does not rely on that) keeps the latest record.
func (r *StreamHistoryRepository) Insert(ctx context.Context, closure domain.StreamClosure) error {
	doc := toClosureDoc(closure)
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": doc.Token},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *StreamHistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.StreamClosure, error) {
	opts := options.Find().SetSort(bson.D{{Key: "closedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []closureDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	closures := make([]domain.StreamClosure, 0, len(docs))
	for _, doc := range docs {
		closures = append(closures, fromClosureDoc(doc))
	}
	return closures, nil
}

func toClosureDoc(c domain.StreamClosure) closureDoc {
	return closureDoc{
		Token:     int64(c.Token),
		MessageID: c.MessageID,
		ChatID:    c.ChatID,
		Remaining: c.Remaining,
		Reason:    c.Reason,
		ClosedAt:  c.ClosedAt.Unix(),
	}
}

func fromClosureDoc(doc closureDoc) domain.StreamClosure {
	return domain.StreamClosure{
		Token:     domain.Token(doc.Token),
		MessageID: doc.MessageID,
		ChatID:    doc.ChatID,
		Remaining: doc.Remaining,
		Reason:    doc.Reason,
		ClosedAt:  time.Unix(doc.ClosedAt, 0).UTC(),
	}
}

var _ ports.StreamHistory = (*StreamHistoryRepository)(nil)
