// handlers/claim_routes.go
package handlers

import (
	"errors"
	"math"
	"strconv"

	"game-rewards-system/middleware"
	"game-rewards-system/models"
	"game-rewards-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

var rejectionStatus = map[models.RejectionReason]int{
	models.RejectionAlreadyInProgress: fiber.StatusConflict,
	models.RejectionCooldownActive:    fiber.StatusTooManyRequests,
	models.RejectionNotEligible:       fiber.StatusForbidden,
	models.RejectionNotConfigured:     fiber.StatusServiceUnavailable,
}

func SetupClaimRoutes(app *fiber.App, engine *services.RewardsEngine, gatewayToken string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"configured": engine.Client.Configured(),
			"features":   engine.Features(),
			"cache":      engine.Client.CacheStats(),
			"overrides":  engine.Selector.Overrides(),
		})
	})

	api := app.Group("/api/rewards")

	// 🎁 Run a claim and return the outcome the UI must animate
	api.Post("/claims/:feature", func(c *fiber.Ctx) error {
		result, err := engine.AttemptClaim(c.UserContext(), c.Params("feature"))
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	api.Post("/claims/:claimId/resolve", func(c *fiber.Ctx) error {
		var body struct {
			FinalRotation *float64 `json:"final_rotation"`
		}
		if err := c.BodyParser(&body); err != nil || body.FinalRotation == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "final_rotation is required"})
		}
		state := models.PresentationState{FinalRotation: *body.FinalRotation}
		reward, overridden, err := engine.ResolveOutcome(c.Params("claimId"), state)
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(fiber.Map{"reward": reward, "overridden": overridden})
	})

	api.Get("/eligibility", func(c *fiber.Ctx) error {
		summaries := make([]models.EligibilitySummary, 0, len(engine.Features()))
		for _, f := range engine.Features() {
			s, err := engine.GetEligibilitySummary(c.UserContext(), f)
			if err != nil {
				return claimError(c, engine, err)
			}
			summaries = append(summaries, s)
		}
		return c.JSON(summaries)
	})

	api.Get("/eligibility/:feature", func(c *fiber.Ctx) error {
		summary, err := engine.GetEligibilitySummary(c.UserContext(), c.Params("feature"))
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(summary)
	})

	api.Get("/search", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		rewards, err := engine.SearchRewards(c.UserContext(), c.Query("q"), limit)
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(fiber.Map{"rewards": rewards, "count": len(rewards)})
	})

	// 🪙 Coins collected in play, credited in batches
	api.Post("/coins/collect", func(c *fiber.Ctx) error {
		var body struct {
			Amount int `json:"amount"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if body.Amount == 0 {
			body.Amount = 1
		}
		balance, err := engine.CollectCoins(c.UserContext(), body.Amount)
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(balance)
	})

	api.Get("/coins", func(c *fiber.Ctx) error {
		balance, err := engine.CoinBalance(c.UserContext())
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(balance)
	})

	flushCoins := func(c *fiber.Ctx) error {
		distributed, err := engine.FlushCoins(c.UserContext())
		if err != nil {
			return claimError(c, engine, err)
		}
		balance, err := engine.CoinBalance(c.UserContext())
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(fiber.Map{"distributed": distributed, "balance": balance})
	}
	api.Post("/coins/flush", flushCoins)
	api.Post("/levels/exit", flushCoins)

	api.Post("/levels/complete", func(c *fiber.Ctx) error {
		result, err := engine.CompleteLevel(c.UserContext())
		if err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(result)
	})

	// 🔐 Admin: wipe claim state of this installation
	api.Post("/admin/reset", middleware.GatewayAuthMiddleware(gatewayToken), func(c *fiber.Ctx) error {
		if err := engine.ResetForTesting(c.UserContext()); err != nil {
			return claimError(c, engine, err)
		}
		return c.JSON(fiber.Map{"message": "reward state reset"})
	})
}

func claimError(c *fiber.Ctx, engine *services.RewardsEngine, err error) error {
	var rejection *services.RejectionError
	if errors.As(err, &rejection) {
		status, ok := rejectionStatus[rejection.Reason]
		if !ok {
			status = fiber.StatusConflict
		}
		if status == fiber.StatusTooManyRequests {
			wait := rejection.RetryAt.Sub(engine.Clock.Now()).Seconds()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Max(1, math.Ceil(wait)))))
		}
		return c.Status(status).JSON(fiber.Map{
			"error":    rejection.Error(),
			"reason":   rejection.Reason,
			"retry_at": rejection.RetryAt,
		})
	}

	var httpErr *services.HTTPError
	switch {
	case errors.Is(err, services.ErrUnknownFeature), errors.Is(err, services.ErrUnknownClaim):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidSelection), errors.Is(err, services.ErrInvalidCoinAmount):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &httpErr), errors.Is(err, services.ErrExhaustedRetries),
		errors.Is(err, services.ErrNetwork), errors.Is(err, services.ErrMalformedResponse):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("❌ reward request failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
