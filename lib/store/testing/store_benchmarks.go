package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
)

// RunStoreBenchmarks runs all benchmarks for an IStore implementation
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {
	b.Run(name, func(b *testing.B) {

		b.Run("Write", func(b *testing.B) {
			benchmarkWrite(b, factory(store.DefaultConfig()))
		})

		b.Run("WriteBatch", func(b *testing.B) {
			benchmarkWriteBatch(b, factory(store.DefaultConfig()))
		})

		b.Run("Read", func(b *testing.B) {
			benchmarkRead(b, factory(store.DefaultConfig()))
		})

		b.Run("Show", func(b *testing.B) {
			benchmarkShow(b, factory(store.DefaultConfig()))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, factory(store.DefaultConfig()))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchKey(i int) string {
	return fmt.Sprintf("%c%d", 'a'+i%26, i)
}

func benchmarkWrite(b *testing.B, s store.IStore) {
	b.Cleanup(func() { _ = s.Close() })

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := int(counter.Add(1))
			if _, err := s.Write([]db.Pair{{Key: benchKey(i), Value: "value"}}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkWriteBatch(b *testing.B, s store.IStore) {
	b.Cleanup(func() { _ = s.Close() })

	var counter atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		pairs := make([]db.Pair, 8)
		for pb.Next() {
			base := int(counter.Add(int64(len(pairs))))
			for i := range pairs {
				pairs[i] = db.Pair{Key: benchKey(base + i), Value: "value"}
			}
			if _, err := s.Write(pairs); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkRead(b *testing.B, s store.IStore) {
	b.Cleanup(func() { _ = s.Close() })

	const n = 10_000
	for i := 0; i < n; i += 256 {
		pairs := make([]db.Pair, 0, 256)
		for j := i; j < i+256 && j < n; j++ {
			pairs = append(pairs, db.Pair{Key: benchKey(j), Value: "value"})
		}
		_, _ = s.Write(pairs)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			if _, err := s.Read([]string{benchKey(rng.Intn(n))}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func benchmarkShow(b *testing.B, s store.IStore) {
	b.Cleanup(func() { _ = s.Close() })

	for i := 0; i < 1000; i++ {
		_, _ = s.Write([]db.Pair{{Key: benchKey(i), Value: "value"}})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Show(); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkMixedUsage(b *testing.B, s store.IStore) {
	b.Cleanup(func() { _ = s.Close() })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := benchKey(rng.Intn(1000))
			var err error
			switch r := rng.Intn(100); {
			case r < 40:
				_, err = s.Write([]db.Pair{{Key: key, Value: "value"}})
			case r < 90:
				_, err = s.Read([]string{key, benchKey(rng.Intn(1000))})
			case r < 99:
				_, err = s.Delete([]string{key})
			default:
				_, err = s.Show()
			}
			if err != nil {
				b.Fatal(err)
			}
		}
	})
}
