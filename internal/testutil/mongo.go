//go:build integration

// Package testutil connects integration tests to live stores. Tests using it
// carry the integration build tag and skip when the store is unreachable.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	mongomigrations "consultbook/internal/migrations/mongo"
	"consultbook/pkg/client"
	"consultbook/pkg/config"
	"consultbook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultDatabaseName = "consultbook_integration"
	ConnectionTimeout   = 10 * time.Second
)

// MongoHelper owns a connection to a scratch database that is dropped on
// cleanup.
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

// NewMongoHelper connects to TEST_MONGO_URI, or skips the test when no
// server answers.
func NewMongoHelper(t *testing.T) *MongoHelper {
	t.Helper()

	uri := getEnv("TEST_MONGO_URI", DefaultMongoURI)
	dbName := getEnv("TEST_DB_NAME", DefaultDatabaseName)

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("mongo unavailable at %s: %v", uri, err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(ctx)
		t.Skipf("mongo unavailable at %s: %v", uri, err)
	}

	h := &MongoHelper{Client: c, Database: c.Database(dbName), DBName: dbName}
	h.CleanDatabase(t)
	if err := mongomigrations.RunMigration(ctx, c, dbName, logger.Discard()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		h.CleanDatabase(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Disconnect(ctx); err != nil {
			t.Logf("warning: failed to disconnect from MongoDB: %v", err)
		}
	})
	return h
}

// Config returns a service config wired to the helper's database.
func (m *MongoHelper) Config() *config.Config {
	return &config.Config{
		Log:               logger.Discard(),
		Client:            &client.Client{Mongo: m.Client},
		MongoDatabaseName: m.DBName,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}

// Insert writes doc straight into collection, bypassing repositories.
func (m *MongoHelper) Insert(t *testing.T, collection string, doc any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.Database.Collection(collection).InsertOne(ctx, doc); err != nil {
		t.Fatalf("failed to insert into %s: %v", collection, err)
	}
}

// CleanDatabase drops every collection in the scratch database.
func (m *MongoHelper) CleanDatabase(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names, err := m.Database.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		t.Fatalf("failed to list collections: %v", err)
	}
	for _, name := range names {
		if err := m.Database.Collection(name).Drop(ctx); err != nil {
			t.Fatalf("failed to drop collection %s: %v", name, err)
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
