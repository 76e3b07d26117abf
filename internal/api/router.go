// Package api assembles the HTTP surface of GuestGate.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guestgate/guestgate/internal/api/common"
	"github.com/guestgate/guestgate/internal/api/handlers"
	"github.com/guestgate/guestgate/internal/config"
	"github.com/guestgate/guestgate/internal/middleware"
)

// NewRouter creates and configures the API router
func NewRouter(cfg *config.Config, deps *common.Dependencies) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// CORS (if enabled)
	if cfg.CORS.Enabled {
		r.Use(middleware.CORS(
			cfg.CORS.AllowedOrigins,
			cfg.CORS.AllowedMethods,
			cfg.CORS.AllowedHeaders,
			cfg.CORS.MaxAgeSeconds,
		))
	}

	// Initialize handlers
	systemHandler := handlers.NewSystemHandler(deps)
	networkDeviceHandler := handlers.NewNetworkDeviceHandler(deps)
	deviceHandler := handlers.NewDeviceHandler(deps)
	ticketHandler := handlers.NewTicketHandler(deps)

	// Public routes (no auth required)
	r.Get("/health", systemHandler.Health)
	r.Get("/ready", systemHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoint
		r.Post("/login", systemHandler.Login)

		// Protected routes (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			// Managed equipment
			r.Route("/network-devices", func(r chi.Router) {
				r.Get("/", networkDeviceHandler.List)
				r.Post("/", networkDeviceHandler.Create)
				r.Get("/{id}", networkDeviceHandler.Get)
				r.Put("/{id}", networkDeviceHandler.Update)
				r.Delete("/{id}", networkDeviceHandler.Delete)
				r.Post("/{id}/test", networkDeviceHandler.Test)
				r.Get("/{id}/stats", networkDeviceHandler.Stats)
				r.Get("/{id}/clients", networkDeviceHandler.Clients)
				r.Get("/{id}/blocked", networkDeviceHandler.BlockedMACs)
				r.Post("/{id}/enforce", networkDeviceHandler.EnforceSuspensions)
			})

			// End-devices under access control
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", deviceHandler.List)
				r.Post("/", deviceHandler.Create)
				r.Get("/{id}", deviceHandler.Get)
				r.Delete("/{id}", deviceHandler.Delete)
				r.Post("/{id}/suspend", deviceHandler.Suspend)
				r.Post("/{id}/resume", deviceHandler.Resume)
			})

			// Guest-level convenience
			r.Post("/guests/{guestID}/suspend-devices", deviceHandler.SuspendGuestDevices)

			// Enforcement actions
			r.Route("/enforcement", func(r chi.Router) {
				r.Post("/block", deviceHandler.Block)
				r.Post("/unblock", deviceHandler.Unblock)
				r.Post("/bandwidth-limit", deviceHandler.SetBandwidthLimit)
				r.Post("/bandwidth-restore", deviceHandler.RemoveBandwidthLimit)
			})

			// Audit trail
			r.Route("/tickets", func(r chi.Router) {
				r.Get("/", ticketHandler.List)
				r.Get("/{number}", ticketHandler.GetByNumber)
			})
			r.Get("/activity/{mac}", ticketHandler.Activity)

			// Suspension sweep control
			r.Route("/sweep", func(r chi.Router) {
				r.Post("/run", systemHandler.RunSweep)
				r.Get("/status", systemHandler.SweepStatus)
			})
		})
	})

	return r
}
