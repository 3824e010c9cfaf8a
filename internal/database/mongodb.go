// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type MongoDB struct {
	Client   *mongo.Client
	Users    *mongo.Collection
	Messages *mongo.Collection
	log      *zap.SugaredLogger
}

func NewMongoDB(ctx context.Context, uri, dbName string, log *zap.SugaredLogger) (*MongoDB, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Infow("connected to MongoDB", "database", dbName)

	db := client.Database(dbName)
	return &MongoDB{
		Client:   client,
		Users:    db.Collection("users"),
		Messages: db.Collection("messages"),
		log:      log.With("component", "mongodb"),
	}, nil
}

// EnsureIndexes creates the indexes the queries rely on. Safe to call on
// every start.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := m.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}

	_, err = m.Messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "seen", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	m.log.Info("closing MongoDB connection")
	return m.Client.Disconnect(ctx)
}
