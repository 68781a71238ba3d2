// handlers/escrow_routes.go
package handlers

import (
	"stake-escrow/middleware"
	"stake-escrow/services"

	"github.com/gofiber/fiber/v2"
)

// NewApp returns the fiber app the escrow is served from. Values read from
// a request (headers, params) outlive it as ledger keys and event actors, so
// the app runs with immutable strings.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		AppName:   "stake-escrow",
		Immutable: true,
		BodyLimit: 1 * 1024 * 1024, // 1MB, game records included
	})
}

// SetupEscrowRoutes registers the escrow surface. validator may be nil, in
// which case only gateway user context authenticates callers.
func SetupEscrowRoutes(app *fiber.App, svc *services.EscrowService, validator middleware.TokenValidator) {
	secured := []fiber.Handler{middleware.UserContextMiddleware()}
	if validator != nil {
		secured = append(secured, middleware.TokenAuthMiddleware(validator))
	}
	secured = append(secured, middleware.RequireCaller())
	with := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, secured...), h)
	}

	escrow := app.Group("/escrow")

	// Public reads
	escrow.Get("/admin", svc.GetAdmin)
	escrow.Get("/stake-amount", svc.GetStakeAmount)
	escrow.Get("/matches/:game_id", svc.GetGameMatch)
	escrow.Get("/matches/:game_id/stream", svc.StreamMatchEvents)
	escrow.Get("/players/:player/staked", svc.HasStaked)
	escrow.Get("/players/:player/game", svc.GetPlayerGame)
	escrow.Get("/balances/:asset/:account", svc.GetBalance)
	escrow.Get("/events", svc.ListEvents)

	// 🔐 Invocations acting for an identity
	escrow.Post("/initialize", with(svc.Initialize)...)
	escrow.Post("/matches/:game_id/stake", with(svc.StakeToPlay)...)
	escrow.Post("/matches/:game_id/winner", with(svc.DeclareWinner)...)
	escrow.Put("/stake-amount", with(svc.UpdateStakeAmount)...)
}
