package paywall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	x402 "github.com/x402-foundation/x402fetch"
)

// DefaultSettlementTTL is how long a settled proof keeps answering with its
// original settlement.
const DefaultSettlementTTL = 10 * time.Minute

// settlementCache remembers successful settlements by proof, and which
// proofs are being settled right now.
type settlementCache struct {
	mu       sync.Mutex
	results  map[string]x402.SettleResponse
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

func newSettlementCache(ttl time.Duration) *settlementCache {
	return &settlementCache{
		results:  make(map[string]x402.SettleResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// settlementKey hashes the whole proof; the signature and nonce inside make
// it unique per payment.
func settlementKey(payload x402.PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// claim returns a cached settlement, or a channel to wait on while another
// request settles the same proof, or marks key in flight and returns a done
// channel the caller must pass to complete or release.
func (c *settlementCache) claim(key string) (cached *x402.SettleResponse, wait, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expiry[key]; ok {
		if c.now().Before(expiry) {
			result := c.results[key]
			return &result, nil, nil
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if ch, ok := c.inFlight[key]; ok {
		return nil, ch, nil
	}

	ch := make(chan struct{})
	c.inFlight[key] = ch
	return nil, nil, ch
}

func (c *settlementCache) complete(key string, result x402.SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
	c.expiry[key] = c.now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	now := c.now()
	for k, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, k)
			delete(c.expiry, k)
		}
	}
}

// release drops the in-flight mark without caching, so the proof can be
// settled again.
func (c *settlementCache) release(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// Idempotent wraps settler so that presenting the same proof again returns
// the first successful settlement instead of settling twice. Concurrent
// requests with one proof wait for the first to finish. Failed settlements
// are not remembered.
func Idempotent(settler Settler, ttl time.Duration) Settler {
	if ttl <= 0 {
		ttl = DefaultSettlementTTL
	}
	return idempotent(settler, newSettlementCache(ttl))
}

func idempotent(settler Settler, cache *settlementCache) Settler {
	return func(ctx context.Context, payload x402.PaymentPayload, offer Offer) (x402.SettleResponse, error) {
		key, err := settlementKey(payload)
		if err != nil {
			return settler(ctx, payload, offer)
		}

		for {
			cached, wait, done := cache.claim(key)
			if cached != nil {
				return *cached, nil
			}
			if wait != nil {
				select {
				case <-wait:
					continue
				case <-ctx.Done():
					return x402.SettleResponse{}, ctx.Err()
				}
			}

			result, err := settler(ctx, payload, offer)
			if err != nil || !result.Success {
				cache.release(key, done)
				return result, err
			}
			cache.complete(key, result, done)
			return result, nil
		}
	}
}
