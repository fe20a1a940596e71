package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mozoqr/waiterpush/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNew_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := New(context.Background(), ClientConfig{Addr: addr, MaxRetries: -1}); err == nil {
		t.Fatal("expected ping error for closed server")
	}
}

func TestTokenStore(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewTokenStore(c)
	ctx := context.Background()

	if _, err := s.Get(ctx, domain.TokenStoreKey); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
	}
	for _, v := range []string{"first", "second"} {
		if err := s.Put(ctx, domain.TokenStoreKey, v); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	got, err := s.Get(ctx, domain.TokenStoreKey)
	if err != nil || got != "second" {
		t.Fatalf("Get = %q, %v; want second", got, err)
	}
}

func TestChannelRegistry_CreateIfAbsent(t *testing.T) {
	c, _ := newTestClient(t)
	r := NewChannelRegistry(c)
	ctx := context.Background()

	ch, err := r.GetChannel(ctx, "waiter_urgent")
	if err != nil || ch != nil {
		t.Fatalf("GetChannel on empty registry = %v, %v", ch, err)
	}

	first := domain.Channel{ID: "waiter_urgent", Name: "Llamadas", Importance: domain.ImportanceHigh, Lights: true, LightColor: "#FF0000"}
	if err := r.CreateChannel(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateChannel(ctx, domain.Channel{ID: "waiter_urgent", Name: "Other"}); err != nil {
		t.Fatal(err)
	}

	ch, err = r.GetChannel(ctx, "waiter_urgent")
	if err != nil {
		t.Fatal(err)
	}
	if *ch != first {
		t.Fatalf("channel = %+v, want %+v", *ch, first)
	}

	all, err := r.ListChannels(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListChannels = %d, %v", len(all), err)
	}
}

func TestChannelRegistry_ConcurrentCreate(t *testing.T) {
	c, _ := newTestClient(t)
	r := NewChannelRegistry(c)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.CreateChannel(context.Background(), domain.Channel{ID: "shared"})
		}()
	}
	wg.Wait()

	all, _ := r.ListChannels(context.Background())
	if len(all) != 1 {
		t.Fatalf("channels = %d, want 1", len(all))
	}
}

func TestChannelRegistry_ListSortedByID(t *testing.T) {
	c, _ := newTestClient(t)
	r := NewChannelRegistry(c)
	ctx := context.Background()

	for _, id := range []string{"waiter_urgent", "mozo_waiter", "waiter_normal", "call_7"} {
		if err := r.CreateChannel(ctx, domain.Channel{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := r.ListChannels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"call_7", "mozo_waiter", "waiter_normal", "waiter_urgent"}
	if len(all) != len(want) {
		t.Fatalf("channels = %d, want %d", len(all), len(want))
	}
	for i, ch := range all {
		if ch.ID != want[i] {
			t.Fatalf("channel %d = %s, want %s", i, ch.ID, want[i])
		}
	}
}

func TestDeduper(t *testing.T) {
	c, mr := newTestClient(t)
	d := NewDeduper(c)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "m-1", time.Minute)
	if err != nil || !first {
		t.Fatalf("first FirstSeen = %v, %v", first, err)
	}
	again, _ := d.FirstSeen(ctx, "m-1", time.Minute)
	if again {
		t.Fatal("second FirstSeen should report a duplicate")
	}

	mr.FastForward(2 * time.Minute)
	expired, _ := d.FirstSeen(ctx, "m-1", time.Minute)
	if !expired {
		t.Fatal("id should be new again after ttl")
	}
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: allowed = %v, err = %v", i, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, "ip", 3, time.Minute)
	if err != nil || ok {
		t.Fatalf("4th request: allowed = %v, err = %v; want denied", ok, err)
	}
	other, _ := rl.Allow(ctx, "other-ip", 3, time.Minute)
	if !other {
		t.Fatal("limits must be per key")
	}
}

func TestSignalBus_PubSub(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "waiterpush:push:*")
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, "waiterpush:push:main", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if string(got) != "hello" {
			t.Fatalf("payload = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
	}

	cancel()
	for range ch {
	}
}

func TestSignalBus_Streams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	if err := bus.EnsureGroup(ctx, "s", "g"); err != nil {
		t.Fatal(err)
	}
	if err := bus.EnsureGroup(ctx, "s", "g"); err != nil {
		t.Fatalf("EnsureGroup must tolerate an existing group: %v", err)
	}

	for _, p := range []string{"a", "b"} {
		if err := bus.StreamAppend(ctx, "s", []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := bus.StreamRead(ctx, "s", "0", 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("StreamRead = %d, %v", len(all), err)
	}

	msgs, err := bus.ReadGroup(ctx, "s", "g", "c1", 10, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "a" || string(msgs[1].Payload) != "b" {
		t.Fatalf("ReadGroup = %+v", msgs)
	}
	if err := bus.Ack(ctx, "s", "g", msgs[0].ID, msgs[1].ID); err != nil {
		t.Fatal(err)
	}

	more, err := bus.ReadGroup(ctx, "s", "g", "c1", 10, -1)
	if err != nil || len(more) != 0 {
		t.Fatalf("second ReadGroup = %d, %v", len(more), err)
	}
}
