package admin

// AdjustPointsRequest changes an account's point balance.
type AdjustPointsRequest struct {
	Amount int    `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,min=1,max=200"`
}

// AdjustPotionRequest changes one potion counter.
type AdjustPotionRequest struct {
	Potion string `json:"potion" validate:"required,potion"`
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,min=1,max=200"`
}

// CreatePurchaseRequest applies a peer content purchase on behalf of a buyer.
type CreatePurchaseRequest struct {
	BuyerID  string `json:"buyer_id" validate:"required"`
	SellerID string `json:"seller_id" validate:"required"`
	NovelID  string `json:"novel_id" validate:"required"`
	Amount   int    `json:"amount" validate:"omitempty,gt=0"`
	FeeSplit int    `json:"fee_split" validate:"omitempty,gte=0"`
	Reason   string `json:"reason" validate:"omitempty,max=200"`
}

// GiftPotionRequest moves one potion between accounts.
type GiftPotionRequest struct {
	FromID string `json:"from_id" validate:"required"`
	ToID   string `json:"to_id" validate:"required"`
	Potion string `json:"potion" validate:"required,potion"`
}

// CleanupRequest runs account cleanup. With no IDs the discovered
// candidates are cleaned.
type CleanupRequest struct {
	AccountIDs []string `json:"account_ids"`
	DryRun     bool     `json:"dry_run"`
	StaleDays  int      `json:"stale_days" validate:"omitempty,gt=0"`
}

// AccountResponse is one account in admin responses.
type AccountResponse struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Point       int            `json:"point"`
	Potions     map[string]int `json:"potions"`
	Status      string         `json:"status"`
	IsActive    bool           `json:"is_active"`
	Premium     string         `json:"premium"`
	CreatedAt   string         `json:"created_at"`
	LastLoginAt string         `json:"last_login_at,omitempty"`
}
