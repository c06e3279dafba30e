package lstore

import (
	"fmt"
	"github.com/ValentinKolb/kvs/lib/backup"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/lockmgr"
	"github.com/ValentinKolb/kvs/lib/pubsub"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("store")

// restoreBatchSize is the number of pairs written per lease during Restore
const restoreBatchSize = 256

type storeImpl struct {
	config  store.Config
	table   *db.Table
	locks   lockmgr.ILockCoordinator
	subs    *pubsub.Registry
	backups *backup.Manager
	metrics *telemetry.Metrics
	closed  atomic.Bool
}

type options struct {
	metrics *telemetry.Metrics
	sink    backup.ISink
}

// Option configures optional collaborators of a local store
type Option func(*options)

// WithMetrics makes the store report to m instead of a private metrics set
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBackupSink replaces the file sink used for backups
func WithBackupSink(sink backup.ISink) Option {
	return func(o *options) { o.sink = sink }
}

// NewLocalStore creates a new in-process store.
// The store is ready to use when it is returned and must be closed with Close.
func NewLocalStore(config store.Config, opts ...Option) (store.IStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	hash, _ := db.HashByName(config.HashFunction)

	o := options{sink: backup.FileSink{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = telemetry.New()
	}

	table := db.NewTable(hash)
	locks := lockmgr.NewLockCoordinator(table)

	s := &storeImpl{
		config:  config,
		table:   table,
		locks:   locks,
		subs:    pubsub.NewRegistry(table, locks, config.MaxSubscriptions, o.metrics),
		backups: backup.NewManager(config.MaxBackups, o.sink, o.metrics),
		metrics: o.metrics,
	}

	Logger.Debugf("created local store%s", config)
	return s, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Write(pairs []db.Pair) ([]error, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	start := time.Now()

	pairErrs := make([]error, len(pairs))
	keys := make([]string, 0, len(pairs))
	for i, p := range pairs {
		if err := store.ValidatePair(p); err != nil {
			pairErrs[i] = err
			s.metrics.InvalidPairs.Inc()
			continue
		}
		keys = append(keys, p.Key)
	}

	lease := s.locks.Acquire(keys, lockmgr.ModeWrite)
	defer lease.Release()
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	for i, p := range pairs {
		if pairErrs[i] != nil {
			continue
		}
		entry, _ := s.table.Upsert(p.Key, p.Value)
		s.subs.Notify(entry, db.Notification{Key: p.Key, Value: p.Value})
	}

	s.metrics.Writes.Inc()
	s.metrics.ObserveWrite(start)
	return pairErrs, nil
}

func (s *storeImpl) Read(keys []string) ([]store.ReadResult, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	start := time.Now()

	lease := s.locks.Acquire(keys, lockmgr.ModeRead)
	defer lease.Release()
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	// locks are taken in bucket order, results stay in request order
	results := make([]store.ReadResult, len(keys))
	for i, key := range keys {
		value, ok := s.table.Lookup(key)
		results[i] = store.ReadResult{Key: key, Value: value, Found: ok}
		if !ok {
			s.metrics.MissingKeys.Inc()
		}
	}

	s.metrics.Reads.Inc()
	s.metrics.ObserveRead(start)
	return results, nil
}

func (s *storeImpl) Delete(keys []string) ([]string, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	start := time.Now()

	lease := s.locks.Acquire(keys, lockmgr.ModeWrite)
	defer lease.Release()
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	var missing []string
	for _, key := range keys {
		entry, ok := s.table.Remove(key)
		if !ok {
			missing = append(missing, key)
			s.metrics.MissingKeys.Inc()
			continue
		}
		s.subs.Notify(entry, db.Notification{Key: key, Value: db.DeletedMarker, Deleted: true})
		s.subs.Detach(entry)
	}

	s.metrics.Deletes.Inc()
	s.metrics.ObserveDelete(start)
	return missing, nil
}

func (s *storeImpl) Show() ([]db.Pair, error) {
	lease := s.locks.AcquireTable()
	defer lease.Release()
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	s.metrics.Shows.Inc()
	return s.table.Enumerate(), nil
}

func (s *storeImpl) Backup(name string, seq uint64) error {
	if s.closed.Load() {
		return store.ErrClosed
	}

	// the slot is acquired by the manager before the table lock is taken
	return s.backups.Request(name, seq, func() ([]db.Pair, error) {
		lease := s.locks.AcquireTable()
		defer lease.Release()
		if s.closed.Load() {
			return nil, store.ErrClosed
		}
		return s.table.Enumerate(), nil
	})
}

func (s *storeImpl) Restore(r io.Reader) (int, error) {
	pairs, err := store.ReadPairs(r)
	if err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(pairs); start += restoreBatchSize {
		end := min(start+restoreBatchSize, len(pairs))
		pairErrs, err := s.Write(pairs[start:end])
		if err != nil {
			return written, err
		}
		for i, pairErr := range pairErrs {
			if pairErr != nil {
				return written, fmt.Errorf("restore pair %d: %w", start+i+1, pairErr)
			}
			written++
		}
	}

	Logger.Infof("restored %d entries", written)
	return written, nil
}

func (s *storeImpl) Subscribe(sub db.Subscriber, key string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	return s.subs.Subscribe(sub, key)
}

func (s *storeImpl) Unsubscribe(sessionID, key string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.subs.Unsubscribe(sessionID, key)
}

func (s *storeImpl) PurgeSession(sessionID string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	s.subs.PurgeSession(sessionID)
	return nil
}

func (s *storeImpl) Info() (store.Info, error) {
	// read before taking the table lock, the backup counter has its own lock
	inFlight := s.backups.InFlight()

	lease := s.locks.AcquireTable()
	defer lease.Release()
	if s.closed.Load() {
		return store.Info{}, store.ErrClosed
	}

	return store.Info{
		Entries:         s.table.Len(),
		BucketSizes:     s.table.BucketSizes(),
		Distribution:    s.table.Distribution(),
		BackupsInFlight: inFlight,
		MaxBackups:      s.backups.Max(),
		HashFunction:    s.config.HashFunction,
	}, nil
}

func (s *storeImpl) Close() error {
	// the exclusive table lock waits for every operation holding bucket locks
	lease := s.locks.AcquireTable()
	if s.closed.Swap(true) {
		lease.Release()
		return store.ErrClosed
	}
	lease.Release()

	s.backups.Wait()
	Logger.Infof("store closed")
	return nil
}
