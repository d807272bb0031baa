// Package mongodb implements the repository contracts against MongoDB,
// the document-store collaborator for rooms, submitted answers, user
// profiles, and quiz content.
package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzroom/internal/repository"
)

const (
	databaseName = "buzzroom"

	roomsCollection     = "rooms"
	answersCollection   = "answers"
	profilesCollection  = "profiles"
	questionsCollection = "questions"
	countersCollection  = "counters"
)

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// mapError translates driver errors into the repository taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrConflict
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 13 is Unauthorized; 8000 is the Atlas variant.
		if cmdErr.Code == 13 || cmdErr.Code == 8000 {
			return repository.ErrAuthorityDenied
		}
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 13 {
				return repository.ErrAuthorityDenied
			}
		}
	}
	return err
}
