// Package testing provides standardised tests and benchmarks for
// store implementations that satisfy the store.IStore interface.
//
// The package contains:
//   - testing: A test suite for the multi-key, notification, backup and close semantics of a store
//   - benchmark: Throughput measurements for the common operations
//
// The suite assumes the letter hash of the default configuration, i.e. keys
// with different initial letters live in different buckets.
//
// Example usage:
//
//	factory := func(config store.Config) store.IStore {
//		s, _ := NewMyStore(config)
//		return s
//	}
//
//	storetesting.RunStoreTests(t, "MyStore", factory)
//	storetesting.RunStoreBenchmarks(b, "MyStore", factory)
package testing
