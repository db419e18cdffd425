package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"game-rewards-system/store"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// stubRemote is an in-process rewards service. Purchases are charged once
// per idempotency key; repeated keys answer with the first receipt.
type stubRemote struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	rewardStatus  []int
	failingQuery  string
	purchaseFails []int
	catalog       func(q map[string]string) any
	fetches       map[string]int
	totalFetches  int
	purchaseKeys  []string
	purchaseBody  []map[string]any
	charges       map[string]string
	registerCode  int
	distributed   []int
	coinStatus    int
	lastHeaders   http.Header

	block   chan struct{}
	started chan struct{}
}

func newStubRemote(t *testing.T) *stubRemote {
	t.Helper()
	s := &stubRemote{
		t:            t,
		catalog:      defaultCatalog,
		fetches:      make(map[string]int),
		charges:      make(map[string]string),
		registerCode: http.StatusCreated,
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stubRemote) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/rewards":
		s.handleRewards(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/rewards/purchase":
		s.handlePurchase(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/player/create-with-uuid":
		s.mu.Lock()
		code := s.registerCode
		s.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/coins/"):
		var body struct {
			Amount int `json:"amount"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		status := s.coinStatus
		if status == 0 {
			s.distributed = append(s.distributed, body.Amount)
		}
		s.mu.Unlock()
		if status != 0 {
			http.Error(w, "coin service down", status)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	default:
		http.NotFound(w, r)
	}
}

func (s *stubRemote) handleRewards(w http.ResponseWriter, r *http.Request) {
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}

	s.mu.Lock()
	s.fetches[r.URL.RawQuery]++
	s.totalFetches++
	s.lastHeaders = r.Header.Clone()
	status := http.StatusOK
	if s.failingQuery != "" && strings.Contains(r.URL.RawQuery, s.failingQuery) {
		status = http.StatusServiceUnavailable
	} else if len(s.rewardStatus) > 0 {
		status = s.rewardStatus[0]
		if len(s.rewardStatus) > 1 {
			s.rewardStatus = s.rewardStatus[1:]
		}
	}
	block, started := s.block, s.started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if status != http.StatusOK {
		http.Error(w, "upstream unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.catalog(q))
}

func (s *stubRemote) handlePurchase(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-idempotency-key")
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseKeys = append(s.purchaseKeys, key)
	s.purchaseBody = append(s.purchaseBody, body)

	if code, ok := s.charges[key]; ok {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "purchase-" + key, "couponCode": code})
		return
	}
	// The charge is made before a scripted failure, as if the response was lost.
	fail := 0
	if len(s.purchaseFails) > 0 {
		fail = s.purchaseFails[0]
		s.purchaseFails = s.purchaseFails[1:]
	}
	if fail == http.StatusBadRequest {
		http.Error(w, "bad reward", fail)
		return
	}
	s.charges[key] = "CODE-" + body["rewardId"].(string)
	if fail != 0 {
		http.Error(w, "gateway timeout", fail)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "purchase-" + key, "couponCode": s.charges[key]}})
}

func (s *stubRemote) failRewards(statuses ...int) {
	s.mu.Lock()
	s.rewardStatus = statuses
	s.mu.Unlock()
}

// failQuery makes every catalog request whose query contains fragment fail.
func (s *stubRemote) failQuery(fragment string) {
	s.mu.Lock()
	s.failingQuery = fragment
	s.mu.Unlock()
}

func (s *stubRemote) failPurchases(statuses ...int) {
	s.mu.Lock()
	s.purchaseFails = statuses
	s.mu.Unlock()
}

func (s *stubRemote) blockRewards() (release func(), started <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = make(chan struct{})
	ch := make(chan struct{}, 16)
	s.started = ch
	block := s.block
	return func() { close(block) }, ch
}

func (s *stubRemote) failCoins(status int) {
	s.mu.Lock()
	s.coinStatus = status
	s.mu.Unlock()
}

func (s *stubRemote) distributions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.distributed...)
}

func (s *stubRemote) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFetches
}

func (s *stubRemote) chargeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.charges)
}

func (s *stubRemote) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.purchaseKeys...)
}

func rewardsEnvelope(items ...map[string]any) map[string]any {
	return map[string]any{"data": map[string]any{"data": items, "meta": map[string]any{"total": len(items)}}}
}

func giftCard(id, brand string) map[string]any {
	return map[string]any{
		"id":       id,
		"name":     brand + " Gift Card",
		"giftCard": true,
		"metadata": map[string]any{"brandName": brand, "brandLogoImage": "https://cdn.example/" + id + ".png"},
	}
}

func coupon(id string, percent int) map[string]any {
	return map[string]any{
		"id":                 id,
		"name":               id,
		"type":               "coupon",
		"discountPercentage": percent,
		"metadata":           map[string]any{"brandName": "Brand " + id},
	}
}

func discount(id string, percent int) map[string]any {
	return map[string]any{"id": id, "name": id, "category": "discount", "discountPercentage": percent}
}

// defaultCatalog answers gift-card queries with one gift card and anything
// else with coupons plus one discount.
func defaultCatalog(q map[string]string) any {
	if q["giftCard"] == "true" {
		return rewardsEnvelope(giftCard("gc-1", "Flipkart"))
	}
	return rewardsEnvelope(
		coupon("cp-1", 5),
		coupon("cp-2", 10),
		discount("dc-1", 15),
		coupon("cp-3", 20),
		coupon("cp-4", 25),
	)
}

func newTestClient(url string, clock clockwork.Clock) *RemoteRewardsClient {
	return NewRemoteRewardsClient(RewardsClientConfig{
		BaseURL:        url,
		APIKey:         "test-key",
		CoinID:         "coin-1",
		RetryBaseDelay: time.Millisecond,
	}, nil, clock)
}

// skipBackoff fires every retry timer armed on clock right away.
func skipBackoff(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for clock.BlockUntilContext(ctx, 1) == nil {
			clock.Advance(10 * time.Millisecond)
		}
	}()
}

type engineFixture struct {
	engine *RewardsEngine
	remote *stubRemote
	store  *store.MemoryStore
	clock  *clockwork.FakeClock
}

func newEngineFixture(t *testing.T, opts PolicyOptions) *engineFixture {
	t.Helper()
	remote := newStubRemote(t)
	clock := clockwork.NewFakeClockAt(testNow)
	skipBackoff(t, clock)
	mem := store.NewMemoryStore()
	return &engineFixture{
		engine: buildEngine(t, remote, mem, clock, opts),
		remote: remote,
		store:  mem,
		clock:  clock,
	}
}

func buildEngine(t *testing.T, remote *stubRemote, s store.Store, clock clockwork.Clock, opts PolicyOptions) *RewardsEngine {
	t.Helper()
	if opts.DeathDiscountCooldown == 0 {
		opts.DeathDiscountCooldown = DefaultDeathDiscountCooldown
	}
	catalog, err := LoadFallbackCatalog("")
	if err != nil {
		t.Fatalf("fallback catalog: %v", err)
	}
	return NewRewardsEngine(EngineConfig{
		KeyPrefix:       "test",
		Window:          NewCalendarWindow(time.UTC),
		WelcomeCoins:    DefaultWelcomeCoins,
		LevelBonusCoins: DefaultLevelBonusCoins,
		Policies:        DefaultPolicies(opts),
	}, newTestClient(remote.server.URL, clock), s, clock, catalog)
}
