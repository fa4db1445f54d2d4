package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/port"
)

type mongoRecord struct {
	ID                string    `bson:"_id"`
	UserID            string    `bson:"user_id"`
	Barcode           string    `bson:"barcode"`
	Product           string    `bson:"product"`
	Colour            string    `bson:"colour"`
	Size              string    `bson:"size"`
	Zone              string    `bson:"zone"`
	Quantity          int       `bson:"quantity"`
	LowStockThreshold int       `bson:"low_stock_threshold"`
	Version           int       `bson:"version"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func (r mongoRecord) toDomain() domain.CanonicalRecord {
	return domain.CanonicalRecord{
		ID: r.ID, UserID: r.UserID, Barcode: r.Barcode,
		Product: r.Product, Colour: r.Colour, Size: r.Size, Zone: r.Zone,
		Quantity: r.Quantity, LowStockThreshold: r.LowStockThreshold, Version: r.Version,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type mongoActivity struct {
	UserID    string    `bson:"user_id"`
	Action    string    `bson:"action"`
	Barcode   string    `bson:"barcode"`
	Zone      string    `bson:"zone"`
	Quantity  int       `bson:"quantity"`
	IsNewItem bool      `bson:"is_new_item"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoAdapter is the canonical store backed by MongoDB.
type MongoAdapter struct {
	inventory *mongo.Collection
	activity  *mongo.Collection
}

// ConnectMongo connects and pings with a 10s budget.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		inventory: db.Collection("inventory"),
		activity:  db.Collection("activity_logs"),
	}
}

func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.inventory.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "barcode", Value: 1}, {Key: "zone", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "barcode", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create inventory indexes: %w", err)
	}

	_, err = m.activity.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

func (m *MongoAdapter) ListByBarcode(ctx context.Context, userID, barcode string) ([]domain.CanonicalRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.inventory.Find(ctx, bson.M{"user_id": userID, "barcode": barcode}, opts)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer cur.Close(ctx)

	var records []domain.CanonicalRecord
	for cur.Next(ctx) {
		var doc mongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
		records = append(records, doc.toDomain())
	}
	return records, cur.Err()
}

func (m *MongoAdapter) Insert(ctx context.Context, rec domain.CanonicalRecord) (domain.CanonicalRecord, error) {
	rec.Version = 1
	doc := mongoRecord{
		ID: rec.ID, UserID: rec.UserID, Barcode: rec.Barcode,
		Product: rec.Product, Colour: rec.Colour, Size: rec.Size, Zone: rec.Zone,
		Quantity: rec.Quantity, LowStockThreshold: rec.LowStockThreshold, Version: rec.Version,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
	if _, err := m.inventory.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.CanonicalRecord{}, port.ErrRecordExists
		}
		return domain.CanonicalRecord{}, fmt.Errorf("insert inventory: %w", err)
	}
	return rec, nil
}

func (m *MongoAdapter) UpdateQuantity(ctx context.Context, id string, quantity, version int) (domain.CanonicalRecord, error) {
	filter := bson.M{"_id": id, "version": version}
	update := bson.M{
		"$set": bson.M{"quantity": quantity, "updated_at": time.Now().UTC()},
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoRecord
	err := m.inventory.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.CanonicalRecord{}, port.ErrOptimisticLock
	}
	if err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("update inventory: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *MongoAdapter) RecordActivity(ctx context.Context, entry domain.ActivityEntry) error {
	_, err := m.activity.InsertOne(ctx, mongoActivity{
		UserID: entry.UserID, Action: string(entry.Action), Barcode: entry.Barcode, Zone: entry.Zone,
		Quantity: entry.Quantity, IsNewItem: entry.IsNewItem, CreatedAt: entry.At,
	})
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}
