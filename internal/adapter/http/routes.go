package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. Every
// route except the session exchange sits behind the bearer-session auth
// middleware, which the caller applies at the router level.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api", func(r chi.Router) {
		// Auth
		r.Post("/auth/session", h.ExchangeSession)
		r.Get("/auth/user", h.GetUser)

		// Agent types
		r.Get("/agent-types", h.ListAgentTypes)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Patch("/agents/{id}/status", h.UpdateAgentStatus)
		r.Get("/agents/{id}/messages", h.ListMessages)
		r.Get("/agents/{id}/alerts", h.ListAgentAlerts)
		r.Get("/agents/{id}/commands", h.ListCommands)

		// Messages
		r.Post("/messages", h.CreateMessage)

		// Alerts
		r.Get("/alerts", h.ListAlerts)
		r.Patch("/alerts/{id}/resolve", h.ResolveAlert)

		// Commands
		r.Post("/commands", h.CreateCommand)
		r.Patch("/commands/{id}/execute", h.ExecuteCommand)
	})
}
