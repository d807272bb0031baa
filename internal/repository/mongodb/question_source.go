package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// QuestionSource resolves quiz content from the questions collection.
type QuestionSource struct {
	collection *mongo.Collection
}

// NewQuestionSource creates a question source on the given client.
func NewQuestionSource(client *mongo.Client) *QuestionSource {
	return &QuestionSource{
		collection: client.Database(databaseName).Collection(questionsCollection),
	}
}

func (s *QuestionSource) Lookup(ctx context.Context, genre, unitID, quizID string) (*model.Question, error) {
	var q model.Question
	err := s.collection.FindOne(ctx, bson.M{
		"_id":    quizID,
		"genre":  genre,
		"unitId": unitID,
	}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrContentIncomplete
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &q, nil
}

func (s *QuestionSource) ListUnit(ctx context.Context, genre, unitID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"genre": genre, "unitId": unitID}, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	if len(docs) == 0 {
		return nil, repository.ErrContentIncomplete
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// Insert stores a question; used by the seed command.
func (s *QuestionSource) Insert(ctx context.Context, q *model.Question) error {
	if _, err := s.collection.InsertOne(ctx, q); err != nil {
		return mapError(err)
	}
	return nil
}
