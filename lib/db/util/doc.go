// Package util provides utility components used by the table and the engine.
//
// The package contains:
//   - statistics: summary statistics and the bucket distribution quality of a table
//   - functions: the FNV-1a string hash
//   - lockfreempsc: a lock-free multi-producer single-consumer queue, the
//     backbone of subscriber mailboxes (producers are mutating operations that
//     must never block, the consumer is the session's delivery goroutine)
package util
