// Package mongo implements repository.UserRepository on MongoDB, storing one
// document per user in the "users" collection.
//
// Uniqueness of username and email is enforced by unique indexes created in
// New; an insert or update that breaks one fails with a duplicate-key error,
// which is reported as apperror.ErrConflict.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const usersCollection = "users"

// DB holds the client and the users collection.
type DB struct {
	client *mongo.Client
	users  *mongo.Collection
	logger *slog.Logger
}

// New connects to uri, pings the server and makes sure the unique indexes exist.
func New(ctx context.Context, uri, database string, logger *slog.Logger) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	db := &DB{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
		logger: logger,
	}

	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to mongo", slog.String("database", database))
	return db, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	_, err := db.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_1"),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_1"),
		},
		{
			Keys:    bson.D{{Key: "fullName", Value: 1}},
			Options: options.Index().SetName("fullName_1"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: creating indexes: %w", err)
	}
	return nil
}

// Close disconnects the client, waiting at most ten seconds.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

// duplicateField names the unique index a duplicate-key error came from, or
// returns "" if err is not one. Server messages look like
// "E11000 duplicate key error collection: videotube.users index: email_1 dup key: ...".
func duplicateField(err error) string {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return ""
	}
	return duplicateFieldFromMessage(err.Error())
}

func duplicateFieldFromMessage(msg string) string {
	switch {
	case strings.Contains(msg, "username_1"):
		return "username"
	case strings.Contains(msg, "email_1"):
		return "email"
	case strings.Contains(msg, "_id_"):
		return "id"
	default:
		return "username"
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
