package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

const summariesCollection = "order_summaries"

type summaryDoc struct {
	OrderNumber string    `bson:"order_number"`
	MenuID      int64     `bson:"menu_id"`
	MenuTitle   string    `bson:"menu_title"`
	Persons     int       `bson:"persons"`
	Total       float64   `bson:"total"`
	CreatedAt   time.Time `bson:"created_at"`
}

// MongoStore keeps order summaries in the order_summaries collection.
type MongoStore struct {
	coll *mongo.Collection
}

// Connect opens a client and verifies the server answers. Callers close it
// with Disconnect.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(summariesCollection)}
}

// EnsureIndexes makes order_number unique so redelivered events upsert.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	return err
}

func (m *MongoStore) RecordOrderSummary(ctx context.Context, s domain.OrderSummary) error {
	doc := summaryDoc{
		OrderNumber: s.OrderNumber,
		MenuID:      s.MenuID,
		MenuTitle:   s.MenuTitle,
		Persons:     s.Persons,
		Total:       s.Total.InexactFloat64(),
		CreatedAt:   s.CreatedAt.UTC(),
	}
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"order_number": s.OrderNumber},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert order summary %s: %w", s.OrderNumber, err)
	}
	return nil
}

func (m *MongoStore) MenuStats(ctx context.Context, rng Range) ([]MenuStat, error) {
	pipeline := mongo.Pipeline{}
	if created := rng.mongoFilter(); len(created) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"created_at": created}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$menu_id"},
			{Key: "menu_title", Value: bson.M{"$last": "$menu_title"}},
			{Key: "orders", Value: bson.M{"$sum": 1}},
			{Key: "revenue", Value: bson.M{"$sum": "$total"}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}, {Key: "_id", Value: 1}}}},
	)

	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate menu stats: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var rows []struct {
		MenuID    int64   `bson:"_id"`
		MenuTitle string  `bson:"menu_title"`
		Orders    int64   `bson:"orders"`
		Revenue   float64 `bson:"revenue"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode menu stats: %w", err)
	}

	stats := make([]MenuStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, MenuStat{
			MenuID:    r.MenuID,
			MenuTitle: r.MenuTitle,
			Orders:    r.Orders,
			Revenue:   decimal.NewFromFloat(r.Revenue).Round(2),
		})
	}
	return stats, nil
}
