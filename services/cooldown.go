// services/cooldown.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"game-rewards-system/store"

	"github.com/jonboulle/clockwork"
)

// CooldownGate admits at most one trigger per feature within its cooldown.
// The last trigger time is persisted so restarts do not reopen the gate.
type CooldownGate struct {
	Store  store.Store
	Clock  clockwork.Clock
	Prefix string

	mu        sync.Mutex
	cooldowns map[string]time.Duration
}

func NewCooldownGate(s store.Store, clock clockwork.Clock, prefix string) *CooldownGate {
	return &CooldownGate{Store: s, Clock: clock, Prefix: prefix, cooldowns: make(map[string]time.Duration)}
}

// SetCooldown configures a feature. A zero duration leaves it ungated.
func (g *CooldownGate) SetCooldown(featureKey string, d time.Duration) {
	g.mu.Lock()
	g.cooldowns[featureKey] = d
	g.mu.Unlock()
}

func (g *CooldownGate) Cooldown(featureKey string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldowns[featureKey]
}

// TryAdmit records now and returns true when more than the cooldown has
// passed since the last admitted trigger. On rejection it returns the time
// at which the gate reopens.
func (g *CooldownGate) TryAdmit(ctx context.Context, featureKey string) (bool, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Clock.Now()
	cooldown := g.cooldowns[featureKey]
	if cooldown <= 0 {
		return true, now, nil
	}

	key := g.key(featureKey)
	raw, ok, err := g.Store.Get(ctx, key)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("load cooldown: %w", err)
	}
	if ok {
		last, err := time.Parse(time.RFC3339Nano, raw)
		if err == nil && now.Sub(last) <= cooldown {
			return false, last.Add(cooldown), nil
		}
	}

	if err := g.Store.Set(ctx, key, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return false, time.Time{}, fmt.Errorf("save cooldown: %w", err)
	}
	return true, now, nil
}

func (g *CooldownGate) Reset(ctx context.Context, featureKeys ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(featureKeys))
	for _, f := range featureKeys {
		keys = append(keys, g.key(f))
	}
	return g.Store.Remove(ctx, keys...)
}

func (g *CooldownGate) key(featureKey string) string {
	return g.Prefix + ":" + featureKey + ":cooldown"
}
