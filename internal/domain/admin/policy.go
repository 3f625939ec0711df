package admin

import (
	"net/http"

	"github.com/weeknovel/weeknovel-api/internal/middleware"
	"github.com/weeknovel/weeknovel-api/internal/pkg/jwt"
	"github.com/weeknovel/weeknovel-api/internal/pkg/response"
)

// Permission represents an admin permission
type Permission string

const (
	PermViewAccounts   Permission = "accounts.view"
	PermViewLedger     Permission = "ledger.view"
	PermAdjustPoints   Permission = "points.adjust"
	PermAdjustPotions  Permission = "potions.adjust"
	PermCreatePurchase Permission = "purchases.create"
	PermPreviewCleanup Permission = "cleanup.preview"
	PermExecuteCleanup Permission = "cleanup.execute"
)

// RolePermissions maps roles to their permissions. Destructive cleanup is
// reserved for full-authority admins; regular admins may still preview it.
var RolePermissions = map[string][]Permission{
	jwt.RoleSuperAdmin: {
		PermViewAccounts, PermViewLedger,
		PermAdjustPoints, PermAdjustPotions, PermCreatePurchase,
		PermPreviewCleanup, PermExecuteCleanup,
	},
	jwt.RoleAdmin: {
		PermViewAccounts, PermViewLedger,
		PermAdjustPoints, PermAdjustPotions, PermCreatePurchase,
		PermPreviewCleanup,
	},
}

// Allowed reports whether the role carries the permission.
func Allowed(role string, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// RequirePermission returns middleware gating a route on one permission.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allowed(middleware.GetRole(r.Context()), perm) {
				response.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
