package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzroom/internal/model"
	"buzzroom/internal/repository"
)

// AnswerLog stores submitted answers. ClickTime comes from a findAndModify
// counter so ordering is decided server-side, never by client clocks.
type AnswerLog struct {
	collection *mongo.Collection
	counters   *mongo.Collection

	mu          sync.Mutex
	subscribers map[string]map[chan struct{}]struct{}
}

// NewAnswerLog creates an answer log on the given client.
func NewAnswerLog(client *mongo.Client) *AnswerLog {
	db := client.Database(databaseName)
	return &AnswerLog{
		collection:  db.Collection(answersCollection),
		counters:    db.Collection(countersCollection),
		subscribers: make(map[string]map[chan struct{}]struct{}),
	}
}

func (l *AnswerLog) Append(ctx context.Context, answer *model.SubmittedAnswer) (*model.SubmittedAnswer, error) {
	clickTime, err := l.nextClickTime(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	stored := *answer
	stored.ClickTime = clickTime
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.ID = primitive.NewObjectID().Hex()
	if _, err := l.collection.InsertOne(ctx, stored); err != nil {
		return nil, mapError(err)
	}
	l.pulse(stored.RoomID)
	return &stored, nil
}

func (l *AnswerLog) Update(ctx context.Context, answer *model.SubmittedAnswer) error {
	res, err := l.collection.ReplaceOne(ctx, bson.M{"_id": answer.ID}, answer)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	l.pulse(answer.RoomID)
	return nil
}

func (l *AnswerLog) ListByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error) {
	return l.find(ctx, bson.M{"roomId": roomID, "quizId": quizID})
}

func (l *AnswerLog) PendingByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error) {
	return l.find(ctx, bson.M{
		"roomId":           roomID,
		"quizId":           quizID,
		"processingStatus": model.ProcessingPending,
	})
}

func (l *AnswerLog) PurgeRoom(ctx context.Context, roomID string) error {
	if _, err := l.collection.DeleteMany(ctx, bson.M{"roomId": roomID}); err != nil {
		return mapError(err)
	}
	return nil
}

func (l *AnswerLog) Watch(ctx context.Context, roomID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	if l.subscribers[roomID] == nil {
		l.subscribers[roomID] = make(map[chan struct{}]struct{})
	}
	l.subscribers[roomID][ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if subs, ok := l.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(l.subscribers, roomID)
			}
		}
		l.mu.Unlock()
	}
	return ch, cancel, nil
}

func (l *AnswerLog) find(ctx context.Context, filter bson.M) ([]*model.SubmittedAnswer, error) {
	opts := options.Find().SetSort(bson.D{{Key: "clickTime", Value: 1}})
	cursor, err := l.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var answers []*model.SubmittedAnswer
	if err := cursor.All(ctx, &answers); err != nil {
		return nil, mapError(err)
	}
	return answers, nil
}

// nextClickTime increments the shared buzz counter and returns its value.
func (l *AnswerLog) nextClickTime(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := l.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "clickTime"},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (l *AnswerLog) pulse(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subscribers[roomID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
