// services/rewards_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = time.Second
	maxResponseBytes      = 4 << 20
)

// RewardsClientConfig configures RemoteRewardsClient.
type RewardsClientConfig struct {
	BaseURL         string
	APIKey          string
	CoinID          string
	Language        string
	Timeout         time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
}

// RemoteRewardsClient talks to the rewards service. Catalog fetches are
// cached per filter and identical concurrent fetches share one request.
type RemoteRewardsClient struct {
	cfg      RewardsClientConfig
	HTTP     *http.Client
	clock    clockwork.Clock
	cache    *rewardCache
	inflight singleflight.Group

	mu       sync.RWMutex
	playerID string
}

func NewRemoteRewardsClient(cfg RewardsClientConfig, httpClient *http.Client, clock clockwork.Clock) *RemoteRewardsClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(cfg.Timeout)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RemoteRewardsClient{
		cfg:   cfg,
		HTTP:  httpClient,
		clock: clock,
		cache: newRewardCache(clock, cfg.CacheTTL, cfg.CacheMaxEntries),
	}
}

// Configured reports whether credentials are present.
func (c *RemoteRewardsClient) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.APIKey != "" && c.cfg.CoinID != ""
}

// SetPlayerID sets the x-game-uuid sent with every request.
func (c *RemoteRewardsClient) SetPlayerID(id string) {
	c.mu.Lock()
	c.playerID = id
	c.mu.Unlock()
}

func (c *RemoteRewardsClient) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// FetchRewards returns the catalog page matching filter.
func (c *RemoteRewardsClient) FetchRewards(ctx context.Context, filter models.RewardFilter) ([]models.Reward, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	key := filter.Signature()
	if rewards, ok := c.cache.get(key); ok {
		return rewards, nil
	}

	// The shared call must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		body, err := c.do(shared, http.MethodGet, "/rewards", filter.Query(c.cfg.CoinID), nil, nil)
		if err != nil {
			return nil, err
		}
		rewards, err := DecodeRewards(body)
		if err != nil {
			return nil, err
		}
		filter.Classify(rewards)
		c.cache.set(key, rewards)
		return rewards, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRewards(res.Val.([]models.Reward)), nil
	}
}

var searchCategories = []struct{ term, category string }{
	{"gift", "gift-cards"},
	{"discount", "discounts"},
	{"coupon", "coupons"},
	{"food", "food-dining"},
	{"shopping", "shopping"},
	{"entertainment", "entertainment"},
	{"travel", "travel"},
	{"gaming", "gaming"},
}

// SearchRewards maps a free-text query onto catalog filters.
func (c *RemoteRewardsClient) SearchRewards(ctx context.Context, query string, limit int) ([]models.Reward, error) {
	if limit <= 0 {
		limit = 10
	}
	return c.FetchRewards(ctx, SearchFilter(query, limit))
}

func SearchFilter(query string, limit int) models.RewardFilter {
	q := strings.ToLower(query)
	f := models.RewardFilter{Limit: limit, SortBy: "relevance"}
	if strings.Contains(q, "gift") {
		f.IsGiftCard = models.GiftCards(true)
	}
	for _, sc := range searchCategories {
		if strings.Contains(q, sc.term) {
			f.Category = sc.category
			break
		}
	}
	return f
}

// NewIdempotencyKey returns a fresh key for one logical purchase attempt.
func NewIdempotencyKey(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Purchase redeems rewardID. Retries reuse idempotencyKey.
func (c *RemoteRewardsClient) Purchase(ctx context.Context, rewardID, idempotencyKey string) (*models.PurchaseReceipt, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	payload := map[string]any{
		"rewardId":         rewardID,
		"coinId":           c.cfg.CoinID,
		"isPrefillEnabled": true,
	}
	body, err := c.do(ctx, http.MethodPost, "/rewards/purchase", nil, payload, map[string]string{
		"x-idempotency-key": idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	return DecodeReceipt(body, idempotencyKey), nil
}

// RegisterPlayer creates the player remotely. An existing player is fine.
func (c *RemoteRewardsClient) RegisterPlayer(ctx context.Context, playerID string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	_, err := c.do(ctx, http.MethodPost, "/player/create-with-uuid", nil, map[string]string{"uuid": playerID}, nil)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// DistributeCoins credits amount coins to the current player.
func (c *RemoteRewardsClient) DistributeCoins(ctx context.Context, amount int) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	path := "/coins/" + url.PathEscape(c.cfg.CoinID) + "/distribute"
	_, err := c.do(ctx, http.MethodPost, path, nil, map[string]int{"amount": amount}, nil)
	return err
}

// PurgeExpired drops expired cache entries and reports how many went.
func (c *RemoteRewardsClient) PurgeExpired() int {
	return c.cache.purgeExpired()
}

func (c *RemoteRewardsClient) ClearCache() {
	c.cache.clear()
}

func (c *RemoteRewardsClient) CacheStats() CacheStats {
	return c.cache.stats()
}

// do sends one logical request, retrying transient failures after
// 2x, 4x, ... RetryBaseDelay on the client clock.
func (c *RemoteRewardsClient) do(ctx context.Context, method, path string, query url.Values, payload any, headers map[string]string) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		encoded = b
	}

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		body, err := c.once(ctx, method, path, query, encoded, headers)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}
	notify := func(err error, delay time.Duration) {
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Dur("backoff", delay).Msg("🔁 rewards request failed, retrying")
	}

	body, err := backoff.RetryNotifyWithTimerAndData(operation, c.retryPolicy(ctx), notify, &clockTimer{clock: c.clock})
	switch {
	case err == nil:
		return body, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, err
	case retryable(err):
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, attempt, err)
	}
	return nil, err
}

func (c *RemoteRewardsClient) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(2*c.cfg.RetryBaseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(time.Hour),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(c.clock),
	)
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1)), ctx)
}

// clockTimer runs backoff waits on a clockwork clock.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

func (c *RemoteRewardsClient) once(ctx context.Context, method, path string, query url.Values, payload []byte, headers map[string]string) ([]byte, error) {
	target := c.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("x-language", c.cfg.Language)
	if id := c.PlayerID(); id != "" {
		req.Header.Set("x-game-uuid", id)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	return data, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Retryable()
}
