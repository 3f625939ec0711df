package ledger

import "time"

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeEarn        EntryType = "earn"
	EntryTypeUse         EntryType = "use"
	EntryTypeAdminAdjust EntryType = "admin_adjust"
	EntryTypeGift        EntryType = "gift"
	EntryTypePurchase    EntryType = "purchase"
	EntryTypeSale        EntryType = "sale"
)

// Potion identifies one of the fixed potion categories.
type Potion string

const (
	PotionRomance    Potion = "romance"
	PotionHistorical Potion = "historical"
	PotionMystery    Potion = "mystery"
	PotionHorror     Potion = "horror"
	PotionFairytale  Potion = "fairytale"
	PotionFantasy    Potion = "fantasy"
)

// Default pricing for peer novel purchases: the buyer pays the full cost,
// the author receives the share, the platform keeps the rest.
const (
	DefaultPurchaseCost = 30
	DefaultSaleShare    = 15
)

// AllPotions lists every valid potion category.
func AllPotions() []Potion {
	return []Potion{
		PotionRomance,
		PotionHistorical,
		PotionMystery,
		PotionHorror,
		PotionFairytale,
		PotionFantasy,
	}
}

// ValidPotion reports whether s names a potion category.
func ValidPotion(s string) bool {
	for _, p := range AllPotions() {
		if s == string(p) {
			return true
		}
	}
	return false
}

// Entry is one immutable audit record of a balance or inventory mutation.
// Entries are append-only: never updated, never deleted while the owning
// account exists.
type Entry struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Amount      int       `json:"amount"`
	Type        EntryType `json:"type"`
	Reason      string    `json:"reason"`
	Potion      string    `json:"potion,omitempty"`
	PotionDelta int       `json:"potion_delta,omitempty"`
	ContentID   string    `json:"content_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
