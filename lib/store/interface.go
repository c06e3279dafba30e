package store

import (
	"fmt"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/db/util"
	"io"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ReadResult is the outcome of reading a single key
type ReadResult struct {
	Key   string
	Value string
	Found bool
}

// Info reports the state of a store.
// It is a point in time view and may be outdated as soon as it is returned.
type Info struct {
	Entries         int                    `json:"entries"`
	BucketSizes     []int                  `json:"bucket_sizes"`
	Distribution    util.DistributionStats `json:"distribution"`
	BackupsInFlight int                    `json:"backups_in_flight"`
	MaxBackups      int                    `json:"max_backups"`
	HashFunction    string                 `json:"hash_function"`
}

// IStore is the engine façade of the key-value store.
// Multi-key operations report per-key outcomes in request order.
// Every method returns a *Error with RetCClosed once the store is closed.
type IStore interface {
	// Write upserts all pairs and notifies the subscribers of every written key.
	// The returned slice is aligned with pairs and holds a *Error for every pair that
	// was rejected (invalid key or value). Valid pairs are written even if others fail.
	Write(pairs []db.Pair) (pairErrs []error, err error)

	// Read looks up every key. The results are in request order.
	Read(keys []string) (results []ReadResult, err error)

	// Delete removes every key and notifies its subscribers with the deletion marker.
	// The subscriptions of a deleted key end with that notification.
	// Returns the keys that did not exist, in request order.
	Delete(keys []string) (missing []string, err error)

	// Show returns all pairs in bucket order, then insertion order.
	Show() (pairs []db.Pair, err error)

	// Backup writes a snapshot of the store to the file "<name>-<seq>.bck".
	// The call blocks while the maximum number of backups is in flight, copies the
	// table and returns. The file is written asynchronously.
	Backup(name string, seq uint64) (err error)

	// Restore writes all "(key,value)" lines read from r and returns the number of pairs written.
	Restore(r io.Reader) (n int, err error)

	// Subscribe registers sub for notifications on key.
	// Fails if the key does not exist or the session of sub is at its subscription limit.
	// Subscribing twice to the same key is a no-op.
	Subscribe(sub db.Subscriber, key string) (err error)

	// Unsubscribe removes the subscription of a session on key.
	// Fails if there is no such subscription.
	Unsubscribe(sessionID, key string) (err error)

	// PurgeSession removes every subscription of a session.
	// It is safe to call for sessions without subscriptions.
	PurgeSession(sessionID string) (err error)

	// Info returns metadata about the store
	Info() (info Info, err error)

	// Close waits for all in-flight operations and backups to finish.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

const (
	DefaultMaxBackups       = 3
	DefaultMaxSubscriptions = 10
)

// Config holds the parameters of a store
type Config struct {
	// MaxBackups is the maximum number of concurrently running backups
	MaxBackups int
	// MaxSubscriptions is the maximum number of subscriptions per session
	MaxSubscriptions int
	// HashFunction names the bucket hash function (see db.HashByName)
	HashFunction string
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() Config {
	return Config{
		MaxBackups:       DefaultMaxBackups,
		MaxSubscriptions: DefaultMaxSubscriptions,
		HashFunction:     db.HashLetter,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MaxBackups < 1 {
		return NewError(RetCInvalidArgument, fmt.Sprintf("max backups must be at least 1, got %d", c.MaxBackups))
	}
	if c.MaxSubscriptions < 1 {
		return NewError(RetCInvalidArgument, fmt.Sprintf("max subscriptions must be at least 1, got %d", c.MaxSubscriptions))
	}
	if _, err := db.HashByName(c.HashFunction); err != nil {
		return NewError(RetCInvalidArgument, err.Error())
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c Config) String() string {
	var sb strings.Builder
	sb.WriteString("\nSTORE\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %d\n", "Max Backups", c.MaxBackups))
	sb.WriteString(fmt.Sprintf("  %-22s: %d\n", "Max Subscriptions", c.MaxSubscriptions))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Hash Function", c.HashFunction))
	return sb.String()
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVSError (code %s): %s", e.Code, e.Msg)
}

// Is reports whether target is a *Error with the same code.
// This allows errors.Is(err, store.ErrKeyNotFound) regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinel errors, compare with errors.Is
var (
	ErrClosed          = NewError(RetCClosed, "store is closed")
	ErrInvalidArgument = NewError(RetCInvalidArgument, "invalid argument")
	ErrKeyNotFound     = NewError(RetCKeyNotFound, "key not found")
	ErrNotSubscribed   = NewError(RetCNotSubscribed, "not subscribed")
	ErrLimitExceeded   = NewError(RetCLimitExceeded, "subscription limit exceeded")
	ErrBackupFailed    = NewError(RetCBackupFailed, "backup failed")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess         RetCode = iota // 0: Command executed successfully.
	RetCInternalError                  // 1: Command failed due to an internal error.
	RetCClosed                         // 2: The store is closed.
	RetCInvalidArgument                // 3: A key or value is empty or too long.
	RetCKeyNotFound                    // 4: The key does not exist.
	RetCNotSubscribed                  // 5: There is no subscription to remove.
	RetCLimitExceeded                  // 6: The session holds the maximum number of subscriptions.
	RetCBackupFailed                   // 7: The backup output could not be created.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCClosed:
		return "Closed"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCNotSubscribed:
		return "NotSubscribed"
	case RetCLimitExceeded:
		return "LimitExceeded"
	case RetCBackupFailed:
		return "BackupFailed"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Validation
// --------------------------------------------------------------------------

// ValidateKey checks that a key is non-empty and at most db.MaxStringSize bytes long.
// Keys must not contain the characters used by the rendering format.
func ValidateKey(key string) error {
	if len(key) == 0 {
		return NewError(RetCInvalidArgument, "empty key")
	}
	if len(key) > db.MaxStringSize {
		return NewError(RetCInvalidArgument, fmt.Sprintf("key %q exceeds %d bytes", key, db.MaxStringSize))
	}
	if strings.ContainsAny(key, "(),[]\n") {
		return NewError(RetCInvalidArgument, fmt.Sprintf("key %q contains reserved characters", key))
	}
	return nil
}

// ValidatePair checks a key-value pair.
// Values may be empty but must not exceed db.MaxStringSize bytes or contain line breaks.
func ValidatePair(p db.Pair) error {
	if err := ValidateKey(p.Key); err != nil {
		return err
	}
	if len(p.Value) > db.MaxStringSize {
		return NewError(RetCInvalidArgument, fmt.Sprintf("value of key %q exceeds %d bytes", p.Key, db.MaxStringSize))
	}
	if strings.ContainsAny(p.Value, "()\n") {
		return NewError(RetCInvalidArgument, fmt.Sprintf("value of key %q contains reserved characters", p.Key))
	}
	return nil
}
