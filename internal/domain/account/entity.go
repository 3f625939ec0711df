package account

import (
	"time"

	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

// Status represents the account lifecycle state.
type Status string

const (
	StatusNormal    Status = "normal"
	StatusSuspended Status = "suspended"
	StatusWithdrawn Status = "withdrawn"
)

// PremiumTier represents the subscription tier.
type PremiumTier string

const (
	PremiumNone    PremiumTier = "none"
	PremiumMonthly PremiumTier = "monthly"
	PremiumYearly  PremiumTier = "yearly"
)

// Account is the root user document as the admin surface sees it.
type Account struct {
	ID               string         `json:"id"`
	DisplayName      string         `json:"display_name"`
	Email            string         `json:"email"`
	Point            int            `json:"point"`
	Potions          map[string]int `json:"potions"`
	Status           Status         `json:"status"`
	IsActive         bool           `json:"is_active"`
	IsMonthlyPremium bool           `json:"is_monthly_premium"`
	IsYearlyPremium  bool           `json:"is_yearly_premium"`
	CreatedAt        time.Time      `json:"created_at"`
	LastLoginAt      time.Time      `json:"last_login_at,omitempty"` // zero when never logged in
}

// PremiumTier derives the tier from the stored flags; yearly wins over
// monthly when both are set.
func (a *Account) PremiumTier() PremiumTier {
	if a.IsYearlyPremium {
		return PremiumYearly
	}
	if a.IsMonthlyPremium {
		return PremiumMonthly
	}
	return PremiumNone
}

// premiumRank is the derived sort key for the premium tier.
func premiumRank(a Account) int {
	switch a.PremiumTier() {
	case PremiumYearly:
		return 3
	case PremiumMonthly:
		return 2
	default:
		return 1
	}
}

// statusRank is the derived sort key for the account status. A missing
// status reads as normal, anything unrecognized sorts last.
func statusRank(a Account) int {
	switch a.Status {
	case StatusNormal, "":
		return 3
	case StatusSuspended:
		return 2
	case StatusWithdrawn:
		return 1
	default:
		return 0
	}
}

// FromDocument decodes an account from its store document.
func FromDocument(doc docstore.Document) Account {
	return Account{
		ID:               doc.ID,
		DisplayName:      docstore.GetString(doc, "displayName"),
		Email:            docstore.GetString(doc, "email"),
		Point:            docstore.GetInt(doc, "point"),
		Potions:          docstore.GetIntMap(doc, "potions"),
		Status:           Status(docstore.GetString(doc, "status")),
		IsActive:         docstore.GetBool(doc, "isActive"),
		IsMonthlyPremium: docstore.GetBool(doc, "isMonthlyPremium"),
		IsYearlyPremium:  docstore.GetBool(doc, "isYearlyPremium"),
		CreatedAt:        docstore.GetTime(doc, "createdAt"),
		LastLoginAt:      docstore.GetTime(doc, "lastLoginAt"),
	}
}
