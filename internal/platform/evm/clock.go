// Package evm anchors protection cooldowns to a block number source, either
// a live EVM endpoint or a wall-clock derivation for simulated runs.
package evm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Najnomics/fheap/internal/domain"
)

// EthClock implements domain.BlockClock against an EVM JSON-RPC endpoint.
// Block numbers are cached for a short interval so hot paths do not hit the
// endpoint on every trade intent.
type EthClock struct {
	client *ethclient.Client
	ttl    time.Duration

	mu        sync.Mutex
	cached    uint64
	fetchedAt time.Time
}

// NewEthClock dials the endpoint and verifies it answers a block number
// query. ttl bounds how stale a cached block number may be; zero disables
// caching.
func NewEthClock(ctx context.Context, rpcURL string, ttl time.Duration) (*EthClock, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("evm: probe block number: %w", err)
	}
	return &EthClock{client: client, ttl: ttl}, nil
}

var _ domain.BlockClock = (*EthClock)(nil)

// BlockNumber returns the current block number, serving from cache while it
// is within ttl.
func (c *EthClock) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 && time.Since(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("evm: block number: %w", err)
	}
	c.cached = n
	c.fetchedAt = time.Now()
	return n, nil
}

// Close releases the underlying RPC connection.
func (c *EthClock) Close() {
	c.client.Close()
}

// LocalClock derives block numbers from wall-clock time at a fixed block
// interval, for simulation runs with no chain attached.
type LocalClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewLocalClock creates a LocalClock starting at block zero now, producing
// one block per interval.
func NewLocalClock(interval time.Duration) *LocalClock {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	return &LocalClock{
		genesis:  time.Now(),
		interval: interval,
		now:      time.Now,
	}
}

var _ domain.BlockClock = (*LocalClock)(nil)

// BlockNumber returns the number of whole intervals elapsed since genesis.
func (c *LocalClock) BlockNumber(ctx context.Context) (uint64, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return 0, nil
	}
	return uint64(elapsed / c.interval), nil
}
