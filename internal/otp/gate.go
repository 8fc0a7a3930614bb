// Package otp issues and verifies short-lived, single-use numeric passcodes
// keyed by an identifier such as an email address.
//
// Records live in process memory. Each identifier has at most one live
// record: Generate overwrites, a successful Verify consumes, and a record
// older than the TTL is treated as absent and removed when looked up.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash/maphash"
	"io"
	"math/big"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/medicart-identity/internal/clock"
)

const (
	// DefaultTTL is how long a code stays valid after it is generated.
	DefaultTTL = 10 * time.Minute

	codeFloor = 100000
	codeSpan  = 900000

	shardCount = 64
)

var (
	// ErrNotFound means no live code exists for the identifier.
	ErrNotFound = errors.New("otp not found")
	// ErrExpired means the code existed but its TTL had passed; it has been removed.
	ErrExpired = errors.New("otp expired")
	// ErrInvalid means the supplied code did not match. The stored code is kept.
	ErrInvalid = errors.New("otp invalid")
)

type record struct {
	code     string
	issuedAt time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]record
}

// Gate is a concurrency-safe passcode store. Operations on one identifier
// are serialised by that identifier's shard lock; identifiers in other
// shards never contend.
type Gate struct {
	ttl    time.Duration
	clock  clock.Clock
	random io.Reader
	seed   maphash.Seed
	shards [shardCount]shard
}

// NewGate creates an empty gate. A nil clock means wall-clock time and a
// non-positive ttl means DefaultTTL.
func NewGate(clk clock.Clock, ttl time.Duration) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Gate{
		ttl:    ttl,
		clock:  clk,
		random: rand.Reader,
		seed:   maphash.MakeSeed(),
	}
	for i := range g.shards {
		g.shards[i].records = make(map[string]record)
	}
	return g
}

// TTL reports how long generated codes remain valid.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

func (g *Gate) shardFor(identifier string) *shard {
	return &g.shards[maphash.String(g.seed, identifier)%shardCount]
}

// Generate draws a uniformly random code in [100000, 999999], stores it for
// identifier and returns it. Any previous unconsumed code for identifier is
// replaced.
func (g *Gate) Generate(identifier string) (string, error) {
	n, err := rand.Int(g.random, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("draw otp: %w", err)
	}
	code := strconv.FormatInt(n.Int64()+codeFloor, 10)

	s := g.shardFor(identifier)
	s.mu.Lock()
	s.records[identifier] = record{code: code, issuedAt: g.clock.Now()}
	s.mu.Unlock()
	return code, nil
}

// Verify checks code against the live record for identifier. A match
// consumes the record. A mismatch leaves it in place so the caller can retry
// until it expires.
func (g *Gate) Verify(identifier, code string) error {
	s := g.shardFor(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		return ErrNotFound
	}
	if g.clock.Now().After(rec.issuedAt.Add(g.ttl)) {
		delete(s.records, identifier)
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(rec.code), []byte(code)) != 1 {
		return ErrInvalid
	}
	delete(s.records, identifier)
	return nil
}

// PurgeExpired drops every expired record and reports how many were removed.
func (g *Gate) PurgeExpired() int {
	now := g.clock.Now()
	removed := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for id, rec := range s.records {
			if now.After(rec.issuedAt.Add(g.ttl)) {
				delete(s.records, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of stored records, expired or not.
func (g *Gate) Len() int {
	total := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		total += len(s.records)
		s.mu.Unlock()
	}
	return total
}

// RunPurger calls PurgeExpired every interval until ctx is done.
func (g *Gate) RunPurger(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.PurgeExpired(); n > 0 {
				logger.Debug("purged expired otp records", zap.Int("count", n))
			}
		}
	}
}
