package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codocs/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo dials MongoDB and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Sugar.Infof("Successfully connected to MongoDB database %s", dbName)
	return client, client.Database(dbName), nil
}

// EnsureIndexes is called at startup. Each index is idempotent; problems are
// aggregated so startup fails with the full picture.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureDocuments(ctx, db); err != nil {
		problems = append(problems, "documents: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureDocuments(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("documents").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "docId", Value: 1}},
			Options: options.Index().SetName("uniq_docId").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_owner_createdAt"),
		},
	})
	return err
}
