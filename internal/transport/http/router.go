package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-dead-mans-switch/internal/config"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/go-dead-mans-switch/internal/transport/http/handler"
	appmiddleware "github.com/go-dead-mans-switch/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, on claim filing, token answers and
	// share reconstruction.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10, deps.Done)

	var tickRunning func() bool
	if deps.Scheduler != nil {
		tickRunning = deps.Scheduler.Running
	}
	healthH := handler.NewHealthHandler(tickRunning)
	secretH := handler.NewSecretHandler(deps.Recovery)
	userH := handler.NewUserHandler(deps.Users)
	switchH := handler.NewSwitchHandler(deps.Switches, deps.Monitor, deps.Notifications)
	linkH := handler.NewLinkHandler(deps.Links)
	claimH := handler.NewClaimHandler(deps.Claims, deps.Recovery)
	adminH := handler.NewAdminHandler(deps.Scheduler)

	r.Route("/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/secrets/split", secretH.Split)
		r.With(sensitiveRL.Limit).Post("/secrets/reconstruct", secretH.Reconstruct)
		r.With(sensitiveRL.Limit).Post("/claims/respond-token", claimH.RespondWithToken)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/users/me", userH.GetMe)
			r.Put("/users/me", userH.PutMe)

			r.Post("/switches", switchH.Create)
			r.Get("/switches", switchH.List)
			r.Get("/switches/{id}", switchH.Get)
			r.Delete("/switches/{id}", switchH.Delete)
			r.Post("/switches/{id}/check-in", switchH.CheckIn)
			r.Get("/switches/{id}/deliveries", switchH.Deliveries)
			r.Post("/switches/{id}/beneficiaries/{beneficiaryId}/resend", switchH.Resend)

			r.Post("/links", linkH.Create)
			r.Get("/links", linkH.List)
			r.Delete("/links/{id}", linkH.Revoke)

			r.With(sensitiveRL.Limit).Post("/claims", claimH.Submit)
			r.Get("/claims/{id}", claimH.Get)
			r.Post("/claims/{id}/respond", claimH.Respond)
			r.With(sensitiveRL.Limit).Post("/claims/{id}/recover", claimH.Recover)
			r.Post("/claims/{id}/key-retrieved", claimH.KeyRetrieved)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/admin/tick", adminH.Tick)
				r.Post("/admin/users/{id}/confirm", userH.Confirm)
			})
		})
	})

	return r
}
