package ws

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"buzzroom/internal/model"
	"buzzroom/pkg/logger"
)

func TestConnectionSendAfterCloseDropped(t *testing.T) {
	conn := &Connection{RoomID: "ROOM01", ParticipantID: "alice", Send: make(chan []byte, 1)}
	conn.close()
	conn.trySend([]byte("snapshot"))
	conn.close()

	_, ok := <-conn.Send
	assert.False(t, ok, "Send closes exactly once and accepts nothing afterwards")
}

// The feed pump delivers store snapshots from its own goroutine while
// teardown closes the connection from the hub. Neither side may observe
// a send on a closed channel.
func TestFeedPumpSurvivesConcurrentDisconnect(t *testing.T) {
	hub := NewHub(logger.Discard())
	h := &Handler{hub: hub, log: logger.Discard()}

	for i := 0; i < 25; i++ {
		conn := &Connection{
			RoomID:        "ROOM01",
			ParticipantID: "alice",
			Send:          make(chan []byte, 1),
		}
		hub.Register(conn)

		ctx, cancel := context.WithCancel(context.Background())
		snapshots := make(chan *model.Room)
		done := make(chan struct{})
		go func() {
			h.feedPump(ctx, conn, snapshots)
			close(done)
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				select {
				case snapshots <- &model.Room{ID: "ROOM01"}:
				case <-ctx.Done():
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			hub.DisconnectRoom("ROOM01")
		}()
		wg.Wait()
		cancel()
		<-done
	}
}

func TestBroadcastDuringDisconnect(t *testing.T) {
	hub := NewHub(logger.Discard())

	for i := 0; i < 25; i++ {
		conn := &Connection{RoomID: "ROOM01", ParticipantID: "alice", Send: make(chan []byte, 1)}
		hub.Register(conn)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.BroadcastRoom("ROOM01", string(MsgRoomState), map[string]int{"seq": j})
			}
		}()
		go func() {
			defer wg.Done()
			hub.DisconnectRoom("ROOM01")
		}()
		wg.Wait()
	}
}
