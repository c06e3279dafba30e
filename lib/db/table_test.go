package db

import (
	"fmt"
	"testing"
)

type testSubscriber string

func (s testSubscriber) SubscriberID() string { return string(s) }
func (s testSubscriber) Notify(_ Notification) bool { return true }

func TestLetterHash(t *testing.T) {
	cases := map[string]int{
		"a":     0,
		"apple": 0,
		"Zebra": 25,
		"z":     25,
		"m1":    12,
		"0":     0,
		"9abc":  9,
		"":      0,
		"_":     int('_') % TableSize,
	}
	for key, want := range cases {
		if got := LetterHash(key); got != want {
			t.Errorf("LetterHash(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestHashFunctionsInRange(t *testing.T) {
	for _, name := range []string{HashLetter, HashFNV, HashXX} {
		h, err := HashByName(name)
		if err != nil {
			t.Fatalf("HashByName(%q): %v", name, err)
		}
		for i := 0; i < 1000; i++ {
			key := fmt.Sprintf("key-%d", i)
			idx := h(key)
			if idx < 0 || idx >= TableSize {
				t.Fatalf("%s(%q) = %d out of range", name, key, idx)
			}
			if h(key) != idx {
				t.Fatalf("%s(%q) is not deterministic", name, key)
			}
		}
	}

	if _, err := HashByName("md5"); err == nil {
		t.Error("Expected error for unknown hash function")
	}
}

func TestUpsertLookupRemove(t *testing.T) {
	table := NewTable(nil)

	if _, ok := table.Lookup("a"); ok {
		t.Fatal("Expected empty table")
	}

	if _, created := table.Upsert("a", "1"); !created {
		t.Error("Expected first upsert to create the entry")
	}
	if _, created := table.Upsert("a", "2"); created {
		t.Error("Expected second upsert to update in place")
	}
	if v, ok := table.Lookup("a"); !ok || v != "2" {
		t.Errorf("Expected a=2, got %q (found=%v)", v, ok)
	}
	if table.Len() != 1 {
		t.Errorf("Expected one entry, got %d", table.Len())
	}

	e, ok := table.Remove("a")
	if !ok || e.Key != "a" {
		t.Fatalf("Expected to remove a, got %v %v", e, ok)
	}
	if _, ok := table.Remove("a"); ok {
		t.Error("Expected second remove to report absence")
	}
	if table.Len() != 0 {
		t.Errorf("Expected empty table, got %d entries", table.Len())
	}
}

func TestEnumerateOrder(t *testing.T) {
	table := NewTable(LetterHash)

	// b-bucket first in insertion order, then the a-bucket
	for _, p := range []Pair{{"banana", "1"}, {"apple", "2"}, {"blue", "3"}, {"avocado", "4"}, {"zoo", "5"}} {
		table.Upsert(p.Key, p.Value)
	}
	table.Upsert("banana", "6")

	want := []Pair{{"apple", "2"}, {"avocado", "4"}, {"banana", "6"}, {"blue", "3"}, {"zoo", "5"}}
	got := table.Enumerate()
	if len(got) != len(want) {
		t.Fatalf("Expected %d pairs, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRemoveKeepsChainIntact(t *testing.T) {
	table := NewTable(LetterHash)
	for _, k := range []string{"a1", "a2", "a3"} {
		table.Upsert(k, k)
	}

	// remove the tail and append again, the tail pointer must follow
	table.Remove("a3")
	table.Upsert("a4", "a4")
	table.Remove("a1")

	got := table.Enumerate()
	if len(got) != 2 || got[0].Key != "a2" || got[1].Key != "a4" {
		t.Errorf("Unexpected chain after removals: %v", got)
	}
	if sizes := table.BucketSizes(); sizes[0] != 2 {
		t.Errorf("Expected bucket 0 to hold 2 entries, got %d", sizes[0])
	}
}

func TestEntrySubscribers(t *testing.T) {
	table := NewTable(nil)
	e, _ := table.Upsert("x", "1")

	if !e.AddSubscriber(testSubscriber("s1")) {
		t.Error("Expected s1 to be added")
	}
	if e.AddSubscriber(testSubscriber("s1")) {
		t.Error("A subscriber must appear at most once per key")
	}
	e.AddSubscriber(testSubscriber("s2"))

	if n := len(e.Subscribers()); n != 2 {
		t.Errorf("Expected 2 subscribers, got %d", n)
	}
	if !e.RemoveSubscriber("s1") || e.HasSubscriber("s1") {
		t.Error("Expected s1 to be removed")
	}
	if e.RemoveSubscriber("s1") {
		t.Error("Removing an absent subscriber must report false")
	}

	// upsert keeps the subscriber set
	e2, _ := table.Upsert("x", "2")
	if !e2.HasSubscriber("s2") {
		t.Error("Expected s2 to survive an update")
	}
}

func TestDistribution(t *testing.T) {
	table := NewTable(LetterHash)
	for i := 0; i < TableSize; i++ {
		table.Upsert(string(rune('a'+i)), "v")
	}
	d := table.Distribution()
	if d.Min != 1 || d.Max != 1 {
		t.Errorf("Expected exactly one entry per bucket, got min=%v max=%v", d.Min, d.Max)
	}
}
