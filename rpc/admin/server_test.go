package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/store/lstore"
	"github.com/ValentinKolb/kvs/lib/telemetry"
)

type fakeSessions struct {
	active       int
	disconnected atomic.Int32
}

func (f *fakeSessions) ActiveSessions() int { return f.active }
func (f *fakeSessions) DisconnectAll()      { f.disconnected.Add(1) }

func newTestServer(t *testing.T) (*httptest.Server, store.IStore, *fakeSessions) {
	t.Helper()
	m := telemetry.New()
	st, err := lstore.NewLocalStore(store.DefaultConfig(), lstore.WithMetrics(m))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	sessions := &fakeSessions{active: 2}
	srv := httptest.NewServer(NewServer(st, m, sessions, true).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return srv, st, sessions
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	code, body := get(t, srv.URL+"/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Errorf("unexpected response %d %q", code, body)
	}
}

func TestShow(t *testing.T) {
	srv, st, _ := newTestServer(t)
	if _, err := st.Write([]db.Pair{{Key: "banana", Value: "yellow"}, {Key: "apple", Value: "red"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	code, body := get(t, srv.URL+"/show")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body != "(apple,red)\n(banana,yellow)\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestMetrics(t *testing.T) {
	srv, st, _ := newTestServer(t)
	if _, err := st.Read([]string{"x"}); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	code, body := get(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if !strings.Contains(body, `kvs_operations_total{op="read"} 1`) {
		t.Errorf("read counter missing in %q", body)
	}
}

func TestInfo(t *testing.T) {
	srv, st, _ := newTestServer(t)
	if _, err := st.Write([]db.Pair{{Key: "k", Value: "v"}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	code, body := get(t, srv.URL+"/info")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var info InfoResponse
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatalf("invalid json %q: %v", body, err)
	}
	if info.Entries != 1 || info.ActiveSessions != 2 || len(info.BucketSizes) != db.TableSize {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestDisconnect(t *testing.T) {
	srv, _, sessions := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions/disconnect", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || sessions.disconnected.Load() != 1 {
		t.Errorf("unexpected status %d, disconnected %d", resp.StatusCode, sessions.disconnected.Load())
	}

	if code, _ := get(t, srv.URL+"/sessions/disconnect"); code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", code)
	}
}

func TestClosedStore(t *testing.T) {
	srv, st, _ := newTestServer(t)
	_ = st.Close()
	if code, _ := get(t, srv.URL+"/show"); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
}
