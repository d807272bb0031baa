// Package repository defines the store contracts the game core depends on,
// together with the error taxonomy every implementation maps into. Services
// branch on these kinds with errors.Is instead of wrapping each write in
// its own recovery block.
package repository

import (
	"context"
	"errors"

	"buzzroom/internal/model"
)

var (
	// ErrNotFound: the room, answer, or question no longer exists. Callers
	// deleting things treat it as success.
	ErrNotFound = errors.New("not found")
	// ErrAuthorityDenied: the store rejected a write the caller had no
	// rights to perform (stale leader session, security rules).
	ErrAuthorityDenied = errors.New("authority denied")
	// ErrConflict: a concurrent writer won; the attempted change lost.
	ErrConflict = errors.New("conflict")
	// ErrContentIncomplete: referenced quiz content cannot be resolved.
	ErrContentIncomplete = errors.New("content incomplete")

	// ErrNoChange may be returned by an Update mutator to skip the write
	// when the target state already holds. Update then returns the current
	// record and a nil error, bounding write volume on hot rooms.
	ErrNoChange = errors.New("no change")
)

// RoomStore persists room records. Update is the single synchronization
// primitive for the shared room document: the mutator runs against the
// latest snapshot and the result is committed atomically, or not at all.
type RoomStore interface {
	Insert(ctx context.Context, room *model.Room) error
	Get(ctx context.Context, roomID string) (*model.Room, error)
	// Update applies mutate to a copy of the current record and commits it
	// atomically. The committed record is returned. mutate may be invoked
	// more than once when the commit races another writer.
	Update(ctx context.Context, roomID string, mutate func(*model.Room) error) (*model.Room, error)
	Delete(ctx context.Context, roomID string) error
	ListByStatus(ctx context.Context, status model.RoomStatus) ([]*model.Room, error)
	// Watch delivers a snapshot of the room after every committed mutation.
	// The caller must invoke the cancel function to release the subscription.
	Watch(ctx context.Context, roomID string) (<-chan *model.Room, func(), error)
}

// AnswerLog is the append-only submitted-answer collection under a room.
// Append assigns the server-side monotonic ClickTime used as the sole
// tie-break authority for buzz arbitration.
type AnswerLog interface {
	Append(ctx context.Context, answer *model.SubmittedAnswer) (*model.SubmittedAnswer, error)
	Update(ctx context.Context, answer *model.SubmittedAnswer) error
	// ListByQuiz returns all answers for the question, ClickTime ascending.
	ListByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error)
	// PendingByQuiz returns unprocessed stubs, ClickTime ascending.
	PendingByQuiz(ctx context.Context, roomID, quizID string) ([]*model.SubmittedAnswer, error)
	PurgeRoom(ctx context.Context, roomID string) error
	// Watch pulses after every append or update under the room.
	Watch(ctx context.Context, roomID string) (<-chan struct{}, func(), error)
}

// ProfileStore holds the durable per-user records touched by settlement.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	// ApplyDelta adds experience and per-genre counters; missing profiles
	// are created.
	ApplyDelta(ctx context.Context, userID string, delta model.ProfileDelta) error
	// SetCurrentRoom sets the user's room back-reference; "" clears it.
	SetCurrentRoom(ctx context.Context, userID, roomID string) error
}

// QuestionSource resolves quiz content. Implementations return
// ErrContentIncomplete when a question cannot be resolved.
type QuestionSource interface {
	Lookup(ctx context.Context, genre, unitID, quizID string) (*model.Question, error)
	// ListUnit returns the pool of question ids for a content unit.
	ListUnit(ctx context.Context, genre, unitID string) ([]string, error)
}
