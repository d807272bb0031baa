package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzroom/internal/model"
)

// ProfileStore persists durable user profiles.
type ProfileStore struct {
	collection *mongo.Collection
}

// NewProfileStore creates a profile store on the given client.
func NewProfileStore(client *mongo.Client) *ProfileStore {
	return &ProfileStore{
		collection: client.Database(databaseName).Collection(profilesCollection),
	}
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&profile)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &profile, nil
}

func (s *ProfileStore) ApplyDelta(ctx context.Context, userID string, delta model.ProfileDelta) error {
	inc := bson.M{"experience": delta.Experience}
	for genre, n := range delta.AnsweredByGenre {
		inc["answeredByGenre."+genre] = n
	}
	update := bson.M{
		"$inc": inc,
		"$set": bson.M{"updatedAt": time.Now()},
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return mapError(err)
}

func (s *ProfileStore) SetCurrentRoom(ctx context.Context, userID, roomID string) error {
	update := bson.M{"$set": bson.M{"currentRoomId": roomID, "updatedAt": time.Now()}}
	if roomID == "" {
		update = bson.M{
			"$unset": bson.M{"currentRoomId": ""},
			"$set":   bson.M{"updatedAt": time.Now()},
		}
	}
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return mapError(err)
}
