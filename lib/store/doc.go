// Package store provides the engine façade of kvs: WRITE, READ, DELETE, SHOW and
// BACKUP over the bucketed table, plus session subscriptions and restore.
//
// The package focuses on:
//   - A unified interface (IStore) for all engine operations
//   - The result rendering shared by job output, the admin endpoint and backups
//   - Unified error handling with typed return codes
//
// Key Components:
//
//   - IStore Interface: multi-key operations report per-key outcomes in request
//     order. Absent keys are a normal outcome (ReadResult.Found, the missing
//     slice of Delete), never an error.
//
//   - Error System: *Error carries a RetCode and a message. Errors compare
//     equal under errors.Is when their codes match, so callers test against the
//     exported sentinels (ErrClosed, ErrKeyNotFound, ...).
//
//   - Rendering: RenderRead produces "[(k1,v1)(k2,KVSERROR)]\n", RenderMissing
//     produces "[(k,KVSMISSING)]\n" (or nothing), RenderPairs and WritePairs
//     produce one "(k,v)\n" line per pair. ReadPairs parses the latter back.
//
// Implementations:
//
//	Local Store (lstore): the in-process engine composing db.Table,
//	lockmgr, pubsub and backup. Available in the
//	"github.com/ValentinKolb/kvs/lib/store/lstore" package.
//
// The reusable test suite in "github.com/ValentinKolb/kvs/lib/store/testing"
// validates any IStore implementation.
package store
