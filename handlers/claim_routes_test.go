package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"game-rewards-system/models"
	"game-rewards-system/services"
	"game-rewards-system/store"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewardsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rewards":
			items := []map[string]any{
				{"id": "cp-1", "name": "5% Off", "type": "coupon"},
				{"id": "cp-2", "name": "10% Off", "type": "coupon"},
			}
			if r.URL.Query().Get("giftCard") == "true" {
				items = []map[string]any{{"id": "gc-1", "name": "Gift Card", "giftCard": true}}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": items})
		case "/rewards/purchase":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "p-1", "couponCode": "CODE"})
		case "/coins/coin-1/distribute":
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, apiKey string) (*fiber.App, *clockwork.FakeClock) {
	t.Helper()
	srv := rewardsServer(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	client := services.NewRemoteRewardsClient(services.RewardsClientConfig{
		BaseURL:        srv.URL,
		APIKey:         apiKey,
		CoinID:         "coin-1",
		RetryBaseDelay: time.Millisecond,
	}, nil, clock)
	catalog, err := services.LoadFallbackCatalog("")
	require.NoError(t, err)
	engine := services.NewRewardsEngine(services.EngineConfig{
		KeyPrefix:       "test",
		Window:          services.NewCalendarWindow(time.UTC),
		LevelBonusCoins: 10,
		Policies: services.DefaultPolicies(services.PolicyOptions{
			MaxClaims:             2,
			DeathDiscountCooldown: 30 * time.Second,
		}),
	}, client, store.NewMemoryStore(), clock, catalog)

	app := fiber.New()
	SetupClaimRoutes(app, engine, "admin-token")
	SetupClaimEventRoutes(app, engine.Events)
	return app, clock
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestClaimAndResolve(t *testing.T) {
	app, _ := newTestApp(t, "key")

	resp, claim := do(t, app, "POST", "/api/rewards/claims/daily", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "daily", claim["feature_key"])
	reward := claim["reward"].(map[string]any)
	assert.Equal(t, "gc-1", reward["id"])
	assert.Equal(t, true, claim["remote_confirmed"])

	plan := claim["presentation"].(map[string]any)
	body, _ := json.Marshal(map[string]any{"final_rotation": plan["target_rotation"]})
	resp, resolved := do(t, app, "POST", "/api/rewards/claims/"+claim["claim_id"].(string)+"/resolve", string(body))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, resolved["overridden"])
	assert.Equal(t, "gc-1", resolved["reward"].(map[string]any)["id"])

	resp, _ = do(t, app, "POST", "/api/rewards/claims/unknown-claim/resolve", `{"final_rotation": 10}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, app, "POST", "/api/rewards/claims/unknown-claim/resolve", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestClaimRejectionStatuses(t *testing.T) {
	app, clock := newTestApp(t, "key")

	resp, _ := do(t, app, "POST", "/api/rewards/claims/jackpot", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/rewards/claims/death-discount", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, body := do(t, app, "POST", "/api/rewards/claims/death-discount", "")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, string(models.RejectionCooldownActive), body["reason"])
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))

	for range 2 {
		resp, _ = do(t, app, "POST", "/api/rewards/claims/daily", "")
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
	resp, body = do(t, app, "POST", "/api/rewards/claims/daily", "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(models.RejectionNotEligible), body["reason"])

	clock.Advance(24 * time.Hour)
	resp, _ = do(t, app, "POST", "/api/rewards/claims/daily", "")
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestClaimNotConfigured(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp, body := do(t, app, "POST", "/api/rewards/claims/daily", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, string(models.RejectionNotConfigured), body["reason"])

	resp, _ = do(t, app, "GET", "/api/rewards/search?q=gift", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestEligibilityAndReset(t *testing.T) {
	app, _ := newTestApp(t, "key")

	resp, _ := do(t, app, "POST", "/api/rewards/claims/Daily", "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, summary := do(t, app, "GET", "/api/rewards/eligibility/daily", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), summary["claims_used"])
	assert.Equal(t, float64(2), summary["max_claims"])
	assert.Equal(t, float64(1), summary["current_streak"])

	resp, _ = do(t, app, "GET", "/api/rewards/eligibility", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, "POST", "/api/rewards/admin/reset", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, app, "POST", "/api/rewards/admin/reset", "", "Authorization", "Bearer admin-token")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, summary = do(t, app, "GET", "/api/rewards/eligibility/daily", "")
	assert.Equal(t, float64(0), summary["claims_used"])
	assert.Equal(t, float64(0), summary["total_claims"])
}

func TestSearchAndHealth(t *testing.T) {
	app, _ := newTestApp(t, "key")

	resp, body := do(t, app, "GET", "/api/rewards/search?q=gift+cards&limit=5", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, _ = do(t, app, "GET", "/api/rewards/search?limit=abc", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, health := do(t, app, "GET", "/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, true, health["configured"])
	assert.Len(t, health["features"], 3)
}

func TestCoinAndLevelRoutes(t *testing.T) {
	app, _ := newTestApp(t, "key")

	resp, balance := do(t, app, "POST", "/api/rewards/coins/collect", `{"amount": 3}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), balance["pending"])

	resp, _ = do(t, app, "POST", "/api/rewards/coins/collect", `{"amount": -1}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, level := do(t, app, "POST", "/api/rewards/levels/complete", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(13), level["distributed"])
	chest := level["chest"].(map[string]any)
	assert.Equal(t, "treasure-chest", chest["feature_key"])

	resp, balance = do(t, app, "GET", "/api/rewards/coins", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), balance["pending"])
	assert.Equal(t, float64(13), balance["distributed"])

	resp, _ = do(t, app, "POST", "/api/rewards/coins/collect", `{}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, flushed := do(t, app, "POST", "/api/rewards/levels/exit", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), flushed["distributed"])
}

func TestCoinFlushNotConfigured(t *testing.T) {
	app, _ := newTestApp(t, "")

	resp, _ := do(t, app, "POST", "/api/rewards/coins/collect", `{"amount": 2}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = do(t, app, "POST", "/api/rewards/coins/flush", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	_, balance := do(t, app, "GET", "/api/rewards/coins", "")
	assert.Equal(t, float64(2), balance["pending"])
}
