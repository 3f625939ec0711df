package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weeknovel/weeknovel-api/internal/middleware"
	"github.com/weeknovel/weeknovel-api/internal/pkg/jwt"
)

// roleFrom reads the caller's role off the request context.
func roleFrom(r *http.Request) string {
	return middleware.GetRole(r.Context())
}

// Routes returns the admin router. All routes require an admin JWT;
// individual routes are additionally gated per permission.
func (h *Handler) Routes(jwtSvc *jwt.Service) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Auth(jwtSvc))
	r.Use(middleware.RequireAdmin())

	r.Route("/accounts", func(r chi.Router) {
		r.With(RequirePermission(PermViewAccounts)).Get("/", h.List)
		r.With(RequirePermission(PermViewAccounts)).Get("/search", h.Search)
		r.With(RequirePermission(PermViewAccounts)).Get("/{id}", h.GetByID)
		r.With(RequirePermission(PermViewLedger)).Get("/{id}/ledger", h.Ledger)
		r.With(RequirePermission(PermAdjustPoints)).Post("/{id}/points", h.AdjustPoints)
		r.With(RequirePermission(PermAdjustPotions)).Post("/{id}/potions", h.AdjustPotion)
	})

	r.With(RequirePermission(PermCreatePurchase)).Post("/purchases", h.CreatePurchase)
	r.With(RequirePermission(PermAdjustPotions)).Post("/gifts", h.GiftPotion)

	r.Route("/cleanup", func(r chi.Router) {
		r.With(RequirePermission(PermPreviewCleanup)).Get("/candidates", h.CleanupCandidates)
		r.With(RequirePermission(PermPreviewCleanup)).Post("/", h.Cleanup)
	})

	return r
}
