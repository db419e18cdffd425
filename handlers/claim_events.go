// handlers/claim_events.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"game-rewards-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const sseKeepAlive = 15 * time.Second

// SetupClaimEventRoutes streams claim state transitions to the UI layer.
func SetupClaimEventRoutes(app *fiber.App, hub *services.ClaimEventHub) {
	app.Get("/api/rewards/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		events, cancel := hub.Subscribe(64)
		done := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()
			ticker := time.NewTicker(sseKeepAlive)
			defer ticker.Stop()

			_, _ = w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					payload, err := json.Marshal(ev)
					if err != nil {
						log.Error().Err(err).Msg("SSE encode error")
						continue
					}
					fmt.Fprintf(w, "event: claim\ndata: %s\n\n", payload)
				case <-ticker.C:
					_, _ = w.WriteString(":\n\n")
				case <-done:
					return
				}
				// A failed flush means the client went away.
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	})
}
