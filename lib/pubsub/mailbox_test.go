package pubsub

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
)

func TestMailboxDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	m := NewMailbox("s", func(n db.Notification) error {
		mu.Lock()
		got = append(got, n.Value)
		mu.Unlock()
		return nil
	}, nil)

	for _, v := range []string{"1", "2", "3"} {
		if !m.Notify(db.Notification{Key: "k", Value: v}) {
			t.Fatalf("Notify(%s) rejected", v)
		}
	}
	m.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("Expected ordered delivery, got %v", got)
	}
	if m.Delivered() != 3 {
		t.Errorf("Expected 3 delivered, got %d", m.Delivered())
	}
	if m.Notify(db.Notification{Key: "k", Value: "4"}) {
		t.Error("A closed mailbox must reject notifications")
	}
}

func TestMailboxNotifyDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	m := NewMailbox("s", func(n db.Notification) error {
		<-release
		return nil
	}, nil)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		m.Notify(db.Notification{Key: "k", Value: "v"})
	}
	if time.Since(start) > time.Second {
		t.Error("Notify blocked on a slow consumer")
	}

	close(release)
	m.Close()
}

func TestMailboxFailure(t *testing.T) {
	var calls atomic.Int32
	failed := make(chan string, 1)

	m := NewMailbox("s", func(n db.Notification) error {
		calls.Add(1)
		return errors.New("broken pipe")
	}, func(id string, err error) {
		failed <- id
	})

	m.Notify(db.Notification{Key: "k", Value: "1"})

	select {
	case id := <-failed:
		if id != "s" {
			t.Errorf("Expected failure for session s, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Failure callback was not invoked")
	}

	if m.Notify(db.Notification{Key: "k", Value: "2"}) {
		t.Error("A failed mailbox must reject notifications")
	}
	m.Close()

	if calls.Load() != 1 {
		t.Errorf("Expected exactly one delivery attempt, got %d", calls.Load())
	}
}
