// Package mempool holds pending, individually valid transactions waiting to be
// mined. Selection is first-in, first-out; a full pool rejects new arrivals.
package mempool

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gabapcia/powchain/internal/ledger"
	"github.com/gabapcia/powchain/internal/pkg/types"
	"github.com/gabapcia/powchain/internal/pkg/x/chflow"
)

var (
	// ErrMempool is the root of every pool admission failure.
	ErrMempool = errors.New("mempool error")

	ErrDuplicate        = fmt.Errorf("%w: transaction already pending", ErrMempool)
	ErrCapacityExceeded = fmt.Errorf("%w: pool is full", ErrMempool)
)

type entry struct {
	tx      ledger.Transaction
	seq     uint64
	arrival time.Time
}

// Pool is a concurrency-safe set of pending transactions keyed by id.
type Pool struct {
	mu      sync.RWMutex
	entries map[ledger.Hash]*entry
	nextSeq uint64

	capacity int
	ttl      time.Duration
	now      func() time.Time

	added chan struct{}
}

type config struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Pool.
type Option func(*config)

// WithCapacity bounds the number of pending transactions.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithTTL sets how long a transaction may stay pending before EvictExpired drops it.
// Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New returns an empty pool. Defaults: capacity 5000, no expiry.
func New(opts ...Option) *Pool {
	cfg := config{
		capacity: 5000,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Pool{
		entries:  make(map[ledger.Hash]*entry),
		capacity: cfg.capacity,
		ttl:      cfg.ttl,
		now:      cfg.now,
		added:    make(chan struct{}, 1),
	}
}

// Submit validates tx and adds it to the pool.
func (p *Pool) Submit(tx ledger.Transaction) error {
	if err := ledger.ValidateTransaction(tx); err != nil {
		return err
	}

	id := tx.ID()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[id]; ok {
		return ErrDuplicate
	}

	if len(p.entries) >= p.capacity {
		return ErrCapacityExceeded
	}

	p.entries[id] = &entry{
		tx:      tx,
		seq:     p.nextSeq,
		arrival: p.now(),
	}
	p.nextSeq++

	chflow.TrySend(p.added, struct{}{})
	return nil
}

// Added delivers a coalesced signal after one or more successful submissions.
func (p *Pool) Added() <-chan struct{} {
	return p.added
}

func (p *Pool) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return entries
}

// SelectForBlock returns up to n of the oldest pending transactions in arrival
// order. It does not remove them.
func (p *Pool) SelectForBlock(n int) []ledger.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sortedLocked()
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}

	txs := make([]ledger.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}
	return txs
}

// Transactions returns every pending transaction in arrival order.
func (p *Pool) Transactions() []ledger.Transaction {
	return p.SelectForBlock(-1)
}

// RemoveConfirmed drops every transaction included in block. Repeating the
// call for the same block is a no-op.
func (p *Pool) RemoveConfirmed(block ledger.Block) {
	p.Evict(block.TransactionIDs()...)
}

// Evict drops the given transactions if present.
func (p *Pool) Evict(ids ...ledger.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		delete(p.entries, id)
	}
}

// EvictExpired drops transactions pending for longer than the configured TTL
// and returns their ids.
func (p *Pool) EvictExpired() []ledger.Hash {
	if p.ttl <= 0 {
		return nil
	}

	cutoff := p.now().Add(-p.ttl)
	expired := types.NewSet[ledger.Hash]()

	p.mu.Lock()
	defer p.mu.Unlock()

	for id, e := range p.entries {
		if e.arrival.Before(cutoff) {
			expired.Add(id)
			delete(p.entries, id)
		}
	}

	return expired.ToSlice()
}

// Contains reports whether id is pending.
func (p *Pool) Contains(id ledger.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.entries[id]
	return ok
}

// Debits sums the pending amounts sent by account, saturating at the uint64 maximum.
func (p *Pool) Debits(account ledger.PublicKey) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total uint64
	for _, e := range p.entries {
		if e.tx.IsCoinbase() || e.tx.Sender != account {
			continue
		}

		if total+e.tx.Amount < total {
			return ^uint64(0)
		}
		total += e.tx.Amount
	}

	return total
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.entries)
}
