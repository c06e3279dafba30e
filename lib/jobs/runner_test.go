package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/store/lstore"
)

func newStore(t *testing.T) store.IStore {
	t.Helper()
	s, err := lstore.NewLocalStore(store.DefaultConfig())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return s
}

func writeJob(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Writing job %s: %v", name, err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading %s: %v", path, err)
	}
	return string(data)
}

func TestRunOutput(t *testing.T) {
	s := newStore(t)
	defer s.Close()

	job := strings.Join([]string{
		"# setup",
		"WRITE [(b,2)(a,1)(c,3)]",
		"READ [c,a,x]",
		"DELETE [b,y]",
		"SHOW",
		"WAIT 1",
		"WAIT 0",
		"NONSENSE",
		"HELP",
	}, "\n")

	var out bytes.Buffer
	summary, err := NewRunner(s, 1).Run(context.Background(), "mem", strings.NewReader(job), &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "[(c,3)(a,1)(x,KVSERROR)]\n" +
		"[(y,KVSMISSING)]\n" +
		"(a,1)\n(c,3)\n" +
		"Waiting...\n" +
		HelpText
	if out.String() != want {
		t.Errorf("Unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
	if summary.Commands != 8 || summary.Invalid != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newStore(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewRunner(s, 1).Run(ctx, "mem", strings.NewReader("WAIT 10000\nSHOW\n"), &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("WAIT was not interrupted by the cancellation")
	}
}

func TestRunDir(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t)

	writeJob(t, dir, "first.job", "WRITE [(a,1)]\nBACKUP\nWRITE [(b,2)]\nBACKUP\n")
	writeJob(t, dir, "second.job", "WRITE [(z,26)]\nREAD [z]\n")
	writeJob(t, dir, "notes.txt", "SHOW\n")
	writeJob(t, dir, ".job", "SHOW\n")
	if err := os.Mkdir(filepath.Join(dir, "nested.job"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := ListJobs(dir)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Expected 2 job files, got %v", paths)
	}

	if err := NewRunner(s, 2).RunDir(context.Background(), dir); err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}
	// Close waits for the asynchronous backup writers
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := readFile(t, filepath.Join(dir, "second.out")); got != "[(z,26)]\n" {
		t.Errorf("Unexpected output of second job %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "first.out")); got != "" {
		t.Errorf("Expected empty output of first job, got %q", got)
	}

	// the first backup can not contain b, the second must contain it
	first := readFile(t, filepath.Join(dir, "first-1.bck"))
	if !strings.Contains(first, "(a,1)\n") || strings.Contains(first, "(b,2)") {
		t.Errorf("Unexpected first backup %q", first)
	}
	second := readFile(t, filepath.Join(dir, "first-2.bck"))
	if !strings.Contains(second, "(a,1)\n") || !strings.Contains(second, "(b,2)\n") {
		t.Errorf("Unexpected second backup %q", second)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.out")); !os.IsNotExist(err) {
		t.Error("Non job files must not be run")
	}
}

func TestRunDirManyJobs(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t)
	defer s.Close()

	const jobs = 12
	for i := 0; i < jobs; i++ {
		writeJob(t, dir, fmt.Sprintf("job%02d.job", i),
			fmt.Sprintf("WRITE [(k%d,%d)(shared,%d)]\nREAD [k%d]\n", i, i, i, i))
	}

	if err := NewRunner(s, 3).RunDir(context.Background(), dir); err != nil {
		t.Fatalf("RunDir failed: %v", err)
	}
	for i := 0; i < jobs; i++ {
		want := fmt.Sprintf("[(k%d,%d)]\n", i, i)
		if got := readFile(t, filepath.Join(dir, fmt.Sprintf("job%02d.out", i))); got != want {
			t.Errorf("Job %d: expected %q, got %q", i, want, got)
		}
	}
}

func TestRunDirMissing(t *testing.T) {
	s := newStore(t)
	defer s.Close()

	if err := NewRunner(s, 1).RunDir(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestWatchRunsNewJobs(t *testing.T) {
	dir := t.TempDir()
	s := newStore(t)
	defer s.Close()

	writeJob(t, dir, "old.job", "WRITE [(o,1)]\nREAD [o]\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRunner(s, 2).Watch(ctx, dir, 20*time.Millisecond) }()

	waitForFile := func(path, want string) {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if data, err := os.ReadFile(path); err == nil && string(data) == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("%s never contained %q", path, want)
	}

	waitForFile(filepath.Join(dir, "old.out"), "[(o,1)]\n")

	// written under a temporary name and renamed, so the job is complete when it appears
	tmp := writeJob(t, dir, "new.tmp", "READ [o,n]\n")
	if err := os.Rename(tmp, filepath.Join(dir, "new.job")); err != nil {
		t.Fatal(err)
	}
	waitForFile(filepath.Join(dir, "new.out"), "[(o,1)(n,KVSERROR)]\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancellation")
	}
}
