package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tournament-escrow/middleware"
	"tournament-escrow/services"
)

func SetupTournamentRoutes(app *fiber.App, tournamentService *services.TournamentService) {
	// Read-only, any gateway caller
	app.Get("/tournaments", tournamentService.ListTournaments)
	app.Get("/tournaments/:id", tournamentService.GetTournamentDetails)
	app.Get("/tournaments/:id/history", tournamentService.GetTournamentHistory)
	app.Get("/tournaments/:id/scores/:player", tournamentService.GetPlayerScore)
	app.Get("/platform/balance", tournamentService.PlatformBalance)
	app.Get("/credits/:account", tournamentService.PendingCredit)

	// Caller identity required. Attached per route so that routes registered
	// later by other Setup* functions stay public.
	user := middleware.UserContextMiddleware()

	app.Get("/tournaments/:id/quote", user, tournamentService.QuoteEntryFee)
	app.Post("/tournaments", user, tournamentService.CreateTournament)
	app.Post("/tournaments/:id/join", user, tournamentService.JoinTournament)
	app.Post("/tournaments/:id/scores", user, tournamentService.SubmitScore)
	app.Post("/tournaments/:id/complete", user, tournamentService.CompleteTournament)
	app.Post("/tournaments/:id/cancel", user, tournamentService.CancelTournament)

	app.Post("/platform/withdraw", user, tournamentService.Withdraw)
	app.Post("/credits/:account/release", user, tournamentService.ReleaseCredit)
}
