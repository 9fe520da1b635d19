package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"plutusbot/bot/engine"
)

func TestPerChatOrdering(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[int64][]string{}
	done := make(chan struct{})
	const perChat = 20

	d := New(func(_ context.Context, chatID int64, ev engine.Event) {
		mu.Lock()
		seen[chatID] = append(seen[chatID], ev.Text)
		total := len(seen[1]) + len(seen[2])
		mu.Unlock()
		if total == 2*perChat {
			close(done)
		}
	})
	defer d.Close()

	for i := 0; i < perChat; i++ {
		text := fmt.Sprintf("%d", i)
		d.Dispatch(1, engine.SubmitText(text))
		d.Dispatch(2, engine.SubmitText(text))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, chatID := range []int64{1, 2} {
		for i, text := range seen[chatID] {
			if want := fmt.Sprintf("%d", i); text != want {
				t.Fatalf("chat %d event %d = %q, want %q", chatID, i, text, want)
			}
		}
	}
}

func TestChatsRunConcurrently(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	release := make(chan struct{})
	fastDone := make(chan struct{})

	d := New(func(_ context.Context, chatID int64, _ engine.Event) {
		if chatID == 1 {
			close(blocked)
			<-release
			return
		}
		close(fastDone)
	})

	d.Dispatch(1, engine.RequestMenu())
	<-blocked
	d.Dispatch(2, engine.RequestMenu())

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 starved behind chat 1's handler")
	}
	close(release)
	d.Close()
}

func TestDispatchNeverBlocksCaller(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	d := New(func(context.Context, int64, engine.Event) {
		<-release
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Dispatch(1, engine.RequestMenu())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch blocked while the handler was busy")
	}
	close(release)
	d.Close()
}

func TestCloseDropsNewEvents(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	handled := 0
	d := New(func(context.Context, int64, engine.Event) {
		mu.Lock()
		handled++
		mu.Unlock()
	})
	d.Close()
	d.Dispatch(1, engine.RequestMenu())
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if handled != 0 {
		t.Fatalf("handled %d events after Close", handled)
	}
}

func TestCloseCancelsHandlerContext(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	d := New(func(ctx context.Context, _ int64, _ engine.Event) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	d.Dispatch(1, engine.RequestMenu())
	<-started

	go d.Close()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler context not cancelled on Close")
	}
}
