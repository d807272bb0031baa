package service

import (
	"fmt"
	"sync"
	"time"
)

type timerKind string

const (
	timerQuestion timerKind = "question"
	timerAnswer   timerKind = "answer"
	timerAdvance  timerKind = "advance"
	timerTeardown timerKind = "teardown"
)

// timerRegistry holds the deferred callbacks driving room progression.
// Keys include the question index, so arming a timer for question N+1
// never cancels or collides with one still pending for question N.
// Callbacks must re-fetch room state and verify the index before acting;
// the registry only guarantees at-most-once firing per armed key.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{timers: make(map[string]*time.Timer)}
}

func timerKey(roomID string, quizIndex int, kind timerKind) string {
	return fmt.Sprintf("%s/%d/%s", roomID, quizIndex, kind)
}

// arm schedules fn after d, replacing any timer already armed under the
// same key.
func (r *timerRegistry) arm(roomID string, quizIndex int, kind timerKind, d time.Duration, fn func()) {
	key := timerKey(roomID, quizIndex, kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, key)
		r.mu.Unlock()
		fn()
	})
}

// cancel stops the timer under the key, if armed.
func (r *timerRegistry) cancel(roomID string, quizIndex int, kind timerKind) {
	key := timerKey(roomID, quizIndex, kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// cancelRoom stops every timer belonging to the room.
func (r *timerRegistry) cancelRoom(roomID string) {
	prefix := roomID + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, t := range r.timers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			t.Stop()
			delete(r.timers, key)
		}
	}
}
