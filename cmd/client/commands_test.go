package client

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
)

type fakeSession struct {
	mu            sync.Mutex
	subscribed    []string
	unsubscribed  []string
	disconnected  bool
	notifications chan db.Notification
}

func newFakeSession() *fakeSession {
	return &fakeSession{notifications: make(chan db.Notification, 8)}
}

func (f *fakeSession) Subscribe(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "missing" {
		return errors.New("rejected")
	}
	f.subscribed = append(f.subscribed, key)
	f.notifications <- db.Notification{Key: key, Value: "v-" + key}
	return nil
}

func (f *fakeSession) Unsubscribe(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, key)
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.disconnected {
		f.disconnected = true
		close(f.notifications)
	}
	return nil
}

func (f *fakeSession) Notifications() <-chan db.Notification {
	return f.notifications
}

func TestParseCommand(t *testing.T) {
	cmd := parseCommand("SUBSCRIBE [apple, banana]")
	if cmd.typ != cmdSubscribe || len(cmd.keys) != 2 || cmd.keys[1] != "banana" {
		t.Errorf("unexpected command %+v", cmd)
	}

	cmd = parseCommand("delay 250")
	if cmd.typ != cmdDelay || cmd.delay != 250*time.Millisecond {
		t.Errorf("unexpected command %+v", cmd)
	}

	for _, line := range []string{"", "   ", "# comment"} {
		if cmd := parseCommand(line); cmd.typ != cmdEmpty {
			t.Errorf("expected empty command for %q, got %+v", line, cmd)
		}
	}
	for _, line := range []string{"SUBSCRIBE", "SUBSCRIBE apple", "DELAY x", "WRITE [(a,b)]"} {
		if cmd := parseCommand(line); cmd.typ != cmdInvalid || cmd.err == nil {
			t.Errorf("expected invalid command for %q, got %+v", line, cmd)
		}
	}
}

func TestRunSession(t *testing.T) {
	s := newFakeSession()
	in := strings.NewReader("SUBSCRIBE [apple,missing]\nUNSUBSCRIBE [apple]\nBOGUS\nDISCONNECT\nSUBSCRIBE [late]\n")
	var out, msg bytes.Buffer

	if err := runSession(s, in, &out, &msg); err != nil {
		t.Fatalf("runSession failed: %v", err)
	}

	if out.String() != "(apple,v-apple)\n" {
		t.Errorf("unexpected notifications %q", out.String())
	}
	if !strings.Contains(msg.String(), "SUBSCRIBE missing failed") || !strings.Contains(msg.String(), "invalid command") {
		t.Errorf("unexpected messages %q", msg.String())
	}
	if len(s.subscribed) != 1 || len(s.unsubscribed) != 1 || !s.disconnected {
		t.Errorf("unexpected session state %+v", s)
	}
}

func TestRunSessionDisconnectsAtEOF(t *testing.T) {
	s := newFakeSession()
	var out, msg bytes.Buffer
	if err := runSession(s, strings.NewReader("HELP\n"), &out, &msg); err != nil {
		t.Fatalf("runSession failed: %v", err)
	}
	if !s.disconnected {
		t.Errorf("session not disconnected at end of input")
	}
	if msg.String() != helpText {
		t.Errorf("unexpected help output %q", msg.String())
	}
}
