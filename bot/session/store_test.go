package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFreshSessionIsIdle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	sess := store.Get(7)
	if sess.State != StateIdle {
		t.Fatalf("fresh session state = %s", sess.State)
	}
	if sess.WalletAddress != "" || sess.PendingPayload != nil || sess.AmountSet {
		t.Fatalf("fresh session carries stale fields: %+v", sess)
	}
}

func TestWithLockSerializesPerChat(t *testing.T) {
	t.Parallel()

	store := NewStore()
	const workers = 16
	const iterations = 50

	// Abuse PendingAmount as a counter. Lost updates would show up as a
	// final value below the expected total.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				err := store.WithLock(context.Background(), 1, func(sess *Session) error {
					v := sess.PendingAmount
					sess.PendingAmount = v + 1
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := store.Get(1).PendingAmount; got != workers*iterations {
		t.Fatalf("counter = %v, want %d", got, workers*iterations)
	}
}

func TestChatsDoNotBlockEachOther(t *testing.T) {
	t.Parallel()

	store := NewStore()
	holding := make(chan struct{})
	released := make(chan struct{})

	go func() {
		_ = store.WithLock(context.Background(), 1, func(*Session) error {
			close(holding)
			<-released
			return nil
		})
	}()
	<-holding
	defer close(released)

	done := make(chan struct{})
	go func() {
		_ = store.WithLock(context.Background(), 2, func(*Session) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chat 2 blocked behind chat 1's lock")
	}
}

func TestWithLockHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WithLock(ctx, 1, func(*Session) error {
		t.Fatal("callback ran with a cancelled context")
		return nil
	})
	if err == nil {
		t.Fatal("expected a context error")
	}
}

func TestResetPreservesWalletAndMarkets(t *testing.T) {
	t.Parallel()

	store := NewStore()
	markets := []Market{{ID: "m1", CoinAddress: "0xaaa"}, {ID: "m2", CoinAddress: "0xbbb"}}
	_ = store.WithLock(context.Background(), 5, func(sess *Session) error {
		sess.State = StateAwaitingConfirmation
		sess.WalletAddress = "0xwallet"
		sess.AvailableMarkets = markets
		sess.SelectMarket(markets[0], ActionBorrow)
		sess.SetAmount(3.5)
		sess.PendingPayload = &Payload{ID: "p1"}
		return nil
	})

	store.Reset(5)

	sess := store.Get(5)
	if sess.State != StateIdle {
		t.Fatalf("state = %s", sess.State)
	}
	if sess.WalletAddress != "0xwallet" {
		t.Fatal("reset dropped the wallet link")
	}
	if len(sess.AvailableMarkets) != 2 {
		t.Fatal("reset dropped the cached market list")
	}
	if sess.SelectedMarket != nil || sess.AmountSet || sess.PendingPayload != nil || sess.Action != "" {
		t.Fatalf("reset kept transaction state: %+v", sess)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewStore()
	_ = store.WithLock(context.Background(), 3, func(sess *Session) error {
		sess.WalletAddress = "0xoriginal"
		sess.AvailableMarkets = []Market{{ID: "m1"}}
		sess.PendingPayload = &Payload{ID: "p1", Body: []byte(`{}`)}
		return nil
	})

	snapshot := store.Get(3)
	snapshot.WalletAddress = "0xmutated"
	snapshot.AvailableMarkets[0].ID = "mutated"
	snapshot.PendingPayload.ID = "mutated"

	current := store.Get(3)
	if current.WalletAddress != "0xoriginal" {
		t.Fatal("snapshot mutation leaked into the store")
	}
	if current.AvailableMarkets[0].ID != "m1" {
		t.Fatal("market slice shared with snapshot")
	}
	if current.PendingPayload.ID != "p1" {
		t.Fatal("payload shared with snapshot")
	}
}

func TestEvictionDropsExpiredSessions(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	store := NewStore(WithTTL(time.Hour), WithClock(clock))

	_ = store.WithLock(context.Background(), 1, func(sess *Session) error {
		sess.WalletAddress = "0xstale"
		return nil
	})
	now = now.Add(30 * time.Minute)
	_ = store.WithLock(context.Background(), 2, func(*Session) error { return nil })

	now = now.Add(45 * time.Minute)
	store.evictExpired()

	if store.Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Len())
	}
	// Chat 1 starts over from a clean session.
	if sess := store.Get(1); sess.WalletAddress != "" {
		t.Fatal("evicted session resurrected with old state")
	}
}

func TestEvictionSkipsPinnedSessions(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	store := NewStore(WithTTL(time.Minute), WithClock(clock))

	_ = store.WithLock(context.Background(), 9, func(*Session) error { return nil })
	now = now.Add(time.Hour)

	e := store.acquire(9)
	store.evictExpired()
	if store.Len() != 1 {
		t.Fatal("pinned session evicted")
	}
	_ = e
	store.release(9)

	store.evictExpired()
	if store.Len() != 0 {
		t.Fatal("expired session survived after release")
	}
}

func TestJanitorStops(t *testing.T) {
	t.Parallel()

	store := NewStore(WithTTL(time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	store.StartJanitor(ctx, 10*time.Millisecond)
	cancel()
	store.Close()
	store.Close() // idempotent
}
