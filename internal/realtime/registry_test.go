package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestRegistrySendToTargetsOnePrincipal(t *testing.T) {
	r := NewRegistry()
	alice, bob := uuid.New(), uuid.New()
	a1 := NewClient(alice, 4)
	a2 := NewClient(alice, 4)
	b1 := NewClient(bob, 4)
	r.Connect(a1, alice)
	r.Connect(a2, alice)
	r.Connect(b1, bob)

	if n := r.SendTo(alice, []byte("hi")); n != 2 {
		t.Fatalf("SendTo delivered %d, want 2", n)
	}
	if len(a1.Send) != 1 || len(a2.Send) != 1 || len(b1.Send) != 0 {
		t.Fatalf("queues a1=%d a2=%d b1=%d", len(a1.Send), len(a2.Send), len(b1.Send))
	}
	if n := r.SendTo(uuid.New(), []byte("x")); n != 0 {
		t.Fatalf("offline principal got %d", n)
	}
}

func TestRegistryBroadcastReachesEveryone(t *testing.T) {
	r := NewRegistry()
	var clients []*Client
	for i := 0; i < 3; i++ {
		id := uuid.New()
		c := NewClient(id, 4)
		clients = append(clients, c)
		r.Connect(c, id)
	}
	if n := r.Broadcast([]byte("all")); n != 3 {
		t.Fatalf("Broadcast delivered %d", n)
	}
	for i, c := range clients {
		if got := string(<-c.Send); got != "all" {
			t.Fatalf("client %d got %q", i, got)
		}
	}
}

func TestRegistryDisconnectIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	c1 := NewClient(id, 4)
	c2 := NewClient(id, 4)
	r.Connect(c1, id)
	r.Connect(c2, id)

	r.Disconnect(c1, id)
	if n := r.Connections(id); n != 1 {
		t.Fatalf("connections = %d", n)
	}
	r.Disconnect(c1, id)
	r.Disconnect(c2, id)
	r.Disconnect(c2, id)
	if n := r.Connections(id); n != 0 {
		t.Fatalf("connections = %d", n)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[id]; ok {
		t.Fatal("empty entry should be removed")
	}
}

func TestRegistryDropsSlowClient(t *testing.T) {
	r := NewRegistry()
	drops := 0
	r.OnDrop = func() { drops++ }

	slowID, fastID := uuid.New(), uuid.New()
	slow := NewClient(slowID, 1)
	fast := NewClient(fastID, 8)
	r.Connect(slow, slowID)
	r.Connect(fast, fastID)

	r.Broadcast([]byte("1"))
	if n := r.Broadcast([]byte("2")); n != 1 {
		t.Fatalf("second broadcast delivered %d, want 1", n)
	}
	if !slow.Closed() {
		t.Fatal("slow client should be closed")
	}
	if r.Connections(slowID) != 0 {
		t.Fatal("slow client should be deregistered")
	}
	if len(fast.Send) != 2 {
		t.Fatalf("fast client queue = %d", len(fast.Send))
	}
	if drops != 1 {
		t.Fatalf("drops = %d", drops)
	}
	// A closed client no longer receives anything.
	if n := r.Broadcast([]byte("3")); n != 1 {
		t.Fatalf("third broadcast delivered %d", n)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	var clients []*Client
	for _, id := range ids {
		c := NewClient(id, 4)
		clients = append(clients, c)
		r.Connect(c, id)
	}
	r.CloseAll()
	for _, c := range clients {
		if !c.Closed() {
			t.Fatal("client left open")
		}
		// Late disconnects from the connection goroutines are harmless.
		r.Disconnect(c, c.UserID)
	}
	if n := r.Broadcast([]byte("x")); n != 0 {
		t.Fatalf("broadcast after CloseAll delivered %d", n)
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(id, 64)
			r.Connect(c, id)
			r.SendTo(id, []byte("x"))
			r.Broadcast([]byte("y"))
			r.Disconnect(c, id)
		}()
	}
	wg.Wait()
	if n := r.Connections(id); n != 0 {
		t.Fatalf("connections = %d", n)
	}
}
