package store

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/kvs/lib/db"
)

func TestRenderRead(t *testing.T) {
	got := RenderRead([]ReadResult{
		{Key: "a", Value: "1", Found: true},
		{Key: "c"},
		{Key: "b", Value: "2", Found: true},
	})
	want := "[(a,1)(c,KVSERROR)(b,2)]\n"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	if got := RenderRead(nil); got != "[]\n" {
		t.Errorf("Expected empty brackets, got %q", got)
	}
}

func TestRenderMissing(t *testing.T) {
	if got := RenderMissing(nil); got != "" {
		t.Errorf("Expected no output when nothing is missing, got %q", got)
	}
	if got := RenderMissing([]string{"c", "a"}); got != "[(c,KVSMISSING)(a,KVSMISSING)]\n" {
		t.Errorf("Unexpected rendering %q", got)
	}
}

func TestPairsRoundTrip(t *testing.T) {
	pairs := []db.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "x,y"}, {Key: "c", Value: ""}}

	var buf bytes.Buffer
	if err := WritePairs(&buf, pairs); err != nil {
		t.Fatalf("WritePairs: %v", err)
	}
	if buf.String() != RenderPairs(pairs) {
		t.Errorf("WritePairs and RenderPairs disagree: %q vs %q", buf.String(), RenderPairs(pairs))
	}

	parsed, err := ReadPairs(strings.NewReader(buf.String() + "\n"))
	if err != nil {
		t.Fatalf("ReadPairs: %v", err)
	}
	if len(parsed) != len(pairs) {
		t.Fatalf("Expected %d pairs, got %d", len(pairs), len(parsed))
	}
	for i := range pairs {
		if parsed[i] != pairs[i] {
			t.Errorf("Pair %d: expected %v, got %v", i, pairs[i], parsed[i])
		}
	}
}

func TestReadPairsRejectsGarbage(t *testing.T) {
	_, err := ReadPairs(strings.NewReader("(a,1)\nnot a pair\n"))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	long := strings.Repeat("k", db.MaxStringSize+1)

	if err := ValidateKey(""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Empty key must be rejected, got %v", err)
	}
	if err := ValidateKey(long); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Long key must be rejected, got %v", err)
	}
	if err := ValidateKey(strings.Repeat("k", db.MaxStringSize)); err != nil {
		t.Errorf("Key of maximum size must be accepted, got %v", err)
	}
	if err := ValidatePair(db.Pair{Key: "a", Value: long}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Long value must be rejected, got %v", err)
	}
	if err := ValidatePair(db.Pair{Key: "a(", Value: "1"}); err == nil {
		t.Error("Reserved characters in keys must be rejected")
	}
}

func TestErrorIs(t *testing.T) {
	err := error(NewError(RetCKeyNotFound, "key \"x\" does not exist"))
	if !errors.Is(err, ErrKeyNotFound) {
		t.Error("Expected errors.Is to match on the return code")
	}
	if errors.Is(err, ErrClosed) {
		t.Error("Different codes must not match")
	}
	if !strings.Contains(err.Error(), "KeyNotFound") {
		t.Errorf("Expected code name in message, got %q", err.Error())
	}
}
