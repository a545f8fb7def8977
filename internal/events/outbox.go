package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

var (
	keyPrefix = []byte("event/")
	keyUpper  = []byte("event0") // '0' sorts right after '/'
)

// Outbox is a durable queue in front of a Publisher. Publish only writes
// the event to disk; a relay started with Start delivers queued events in
// order and deletes each one once the sink accepts it.
type Outbox struct {
	db       *pebble.DB
	sink     Publisher
	interval time.Duration
	logger   *slog.Logger

	life    sync.RWMutex // read-held by operations, write-held by Close
	closed  bool
	seqMu   sync.Mutex
	seq     uint64
	drainMu sync.Mutex
}

// OpenOutbox opens (or creates) the outbox stored in dir.
func OpenOutbox(dir string, sink Publisher, interval time.Duration, logger *slog.Logger) (*Outbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}

	o := &Outbox{db: db, sink: sink, interval: interval, logger: logger}
	last, err := o.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	o.seq = last
	return o, nil
}

// ErrOutboxClosed is returned by operations on a closed Outbox.
var ErrOutboxClosed = errors.New("outbox closed")

// Close waits for in-flight operations and closes the store.
func (o *Outbox) Close() error {
	o.life.Lock()
	defer o.life.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	return o.db.Close()
}

// Publish implements Publisher by appending the event to the queue.
func (o *Outbox) Publish(_ context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	o.life.RLock()
	defer o.life.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}

	// The sequence lock spans the write so keys land in sequence order.
	o.seqMu.Lock()
	defer o.seqMu.Unlock()
	o.seq++
	return o.db.Set(keyFor(o.seq), value, pebble.Sync)
}

// Start launches the relay. It stops when ctx is cancelled.
func (o *Outbox) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := o.Drain(ctx)
				if errors.Is(err, ErrOutboxClosed) {
					return
				}
				if err != nil && ctx.Err() == nil {
					o.logger.Warn("outbox delivery failed", "error", err)
				}
			}
		}
	}()
}

// Drain delivers queued events oldest first and returns how many were
// delivered. It stops at the first failure so events are never reordered.
func (o *Outbox) Drain(ctx context.Context) (int, error) {
	o.life.RLock()
	defer o.life.RUnlock()
	if o.closed {
		return 0, ErrOutboxClosed
	}

	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: keyUpper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	delivered := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var ev Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			// A record that cannot be decoded would block the queue forever.
			o.logger.Error("dropping corrupt outbox record", "key", string(iter.Key()), "error", err)
			if err := o.db.Delete(iter.Key(), pebble.Sync); err != nil {
				return delivered, err
			}
			continue
		}
		if err := o.sink.Publish(ctx, ev); err != nil {
			return delivered, fmt.Errorf("publish %s %s: %w", ev.Type, ev.ID, err)
		}
		if err := o.db.Delete(iter.Key(), pebble.Sync); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, iter.Error()
}

// Len returns the number of queued events.
func (o *Outbox) Len() (int, error) {
	o.life.RLock()
	defer o.life.RUnlock()
	if o.closed {
		return 0, ErrOutboxClosed
	}

	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: keyUpper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

func (o *Outbox) lastSeq() (uint64, error) {
	iter, err := o.db.NewIter(&pebble.IterOptions{LowerBound: keyPrefix, UpperBound: keyUpper})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return seqFromKey(iter.Key())
}

// keyFor encodes seq big-endian so byte order matches queue order.
func keyFor(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func seqFromKey(key []byte) (uint64, error) {
	if len(key) != len(keyPrefix)+8 {
		return 0, errors.New("invalid outbox key length")
	}
	return binary.BigEndian.Uint64(key[len(keyPrefix):]), nil
}
