package groupbot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
)

func TestDispatchUpdatesDoesNotSerializeHandlers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan telego.Update, 2)
	release := make(chan struct{})
	seen := make(chan int, 2)

	var wg sync.WaitGroup
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		dispatchUpdates(ctx, updates, &wg, func(_ context.Context, u telego.Update) {
			seen <- u.UpdateID
			if u.UpdateID == 1 {
				// A handler stuck in a fan-out wait must not block the
				// next update's handler.
				<-release
			}
		})
	}()

	updates <- telego.Update{UpdateID: 1}
	updates <- telego.Update{UpdateID: 2}

	got := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-seen:
			got[id] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d handler(s) started, want 2", len(got))
		}
	}
	if !got[1] || !got[2] {
		t.Fatalf("handlers started = %v, want updates 1 and 2", got)
	}

	close(release)
	cancel()
	wg.Wait()
	select {
	case <-loopDone:
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not exit on context cancel")
	}
}

func TestDispatchUpdatesStopsOnClosedChannel(t *testing.T) {
	updates := make(chan telego.Update)
	close(updates)

	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatchUpdates(context.Background(), updates, &wg, func(context.Context, telego.Update) {})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not exit on closed updates channel")
	}
}
