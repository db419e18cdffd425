// services/coins.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"game-rewards-system/store"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLevelBonusCoins   = 10
	DefaultCoinFlushInterval = 10 * time.Second
)

var ErrInvalidCoinAmount = errors.New("coin amount must be positive")

// CoinDistributor credits coins to the player on the rewards service.
type CoinDistributor interface {
	DistributeCoins(ctx context.Context, amount int) error
}

// CoinBalance is the persisted state of coins collected in play.
type CoinBalance struct {
	// Pending coins are collected locally and not yet sent.
	Pending int `json:"pending"`
	// InFlight coins are part of a credit call that has not answered.
	InFlight    int       `json:"in_flight"`
	Distributed int64     `json:"distributed"`
	LastFlushAt time.Time `json:"last_flush_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// CoinReconciler batches coins collected during a level and credits them
// remotely. Coins leave the pending counter before the credit call and come
// back when it fails, so collection never waits on the network.
type CoinReconciler struct {
	API        CoinDistributor
	Store      store.Store
	Clock      clockwork.Clock
	LevelBonus int

	key     string
	mu      sync.Mutex
	flushMu sync.Mutex
}

func NewCoinReconciler(api CoinDistributor, s store.Store, clock clockwork.Clock, key string, levelBonus int) *CoinReconciler {
	return &CoinReconciler{API: api, Store: s, Clock: clock, LevelBonus: levelBonus, key: key}
}

// Balance returns the stored balance.
func (c *CoinReconciler) Balance(ctx context.Context) (CoinBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Collect adds amount to the pending counter.
func (c *CoinReconciler) Collect(ctx context.Context, amount int) (CoinBalance, error) {
	if amount <= 0 {
		return CoinBalance{}, fmt.Errorf("%w: %d", ErrInvalidCoinAmount, amount)
	}
	return c.update(ctx, func(b *CoinBalance) {
		b.Pending += amount
	})
}

// Flush credits every pending coin. It reports how many went out. On
// failure the coins are added back to the pending counter.
func (c *CoinReconciler) Flush(ctx context.Context) (int, error) {
	return c.flush(ctx, 0)
}

// CompleteLevel adds the level bonus and flushes. The bonus stays pending
// when the credit fails.
func (c *CoinReconciler) CompleteLevel(ctx context.Context) (int, error) {
	return c.flush(ctx, c.LevelBonus)
}

// Reset drops the balance.
func (c *CoinReconciler) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Store.Apply(ctx, store.Delete(c.key))
}

func (c *CoinReconciler) flush(ctx context.Context, bonus int) (int, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	// InFlight left over here belongs to a run that never finished.
	var amount int
	if _, err := c.update(ctx, func(b *CoinBalance) {
		amount = b.Pending + b.InFlight + bonus
		b.Pending = 0
		b.InFlight = amount
	}); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, nil
	}

	sendErr := c.API.DistributeCoins(ctx, amount)

	commitCtx := context.WithoutCancel(ctx)
	_, err := c.update(commitCtx, func(b *CoinBalance) {
		b.InFlight = 0
		if sendErr != nil {
			b.Pending += amount
			b.LastError = sendErr.Error()
			return
		}
		b.Distributed += int64(amount)
		b.LastFlushAt = c.Clock.Now()
		b.LastError = ""
	})
	if sendErr != nil {
		log.Warn().Err(sendErr).Int("amount", amount).Msg("❌ coin distribution failed, keeping coins pending")
		return 0, errors.Join(fmt.Errorf("distribute %d coins: %w", amount, sendErr), err)
	}
	if err != nil {
		return amount, err
	}
	log.Info().Int("amount", amount).Msg("🪙 coins distributed")
	return amount, nil
}

func (c *CoinReconciler) update(ctx context.Context, fn func(*CoinBalance)) (CoinBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := c.load(ctx)
	if err != nil {
		return CoinBalance{}, err
	}
	fn(&b)
	m, err := store.PutJSON(c.key, b)
	if err != nil {
		return CoinBalance{}, err
	}
	if err := c.Store.Apply(ctx, m); err != nil {
		return CoinBalance{}, err
	}
	return b, nil
}

func (c *CoinReconciler) load(ctx context.Context) (CoinBalance, error) {
	var b CoinBalance
	if _, err := store.GetJSON(ctx, c.Store, c.key, &b); err != nil {
		return CoinBalance{}, err
	}
	return b, nil
}
