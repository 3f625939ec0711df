package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weeknovel/weeknovel-api/internal/domain/account"
	"github.com/weeknovel/weeknovel-api/internal/domain/ledger"
	"github.com/weeknovel/weeknovel-api/internal/domain/lifecycle"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/response"
	"github.com/weeknovel/weeknovel-api/internal/pkg/validator"
)

// Handler serves the admin account endpoints
type Handler struct {
	accounts *account.Repository
	ledger   *ledger.Service
	cleaner  *lifecycle.Cleaner
}

// NewHandler creates admin handler
func NewHandler(accounts *account.Repository, ledgerSvc *ledger.Service, cleaner *lifecycle.Cleaner) *Handler {
	return &Handler{accounts: accounts, ledger: ledgerSvc, cleaner: cleaner}
}

func toAccountResponse(a account.Account) *AccountResponse {
	resp := &AccountResponse{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Point:       a.Point,
		Potions:     a.Potions,
		Status:      string(a.Status),
		IsActive:    a.IsActive,
		Premium:     string(a.PremiumTier()),
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
	if !a.LastLoginAt.IsZero() {
		resp.LastLoginAt = a.LastLoginAt.Format(time.RFC3339)
	}
	return resp
}

func toAccountResponses(accounts []account.Account) []*AccountResponse {
	out := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	return out
}

// List handles GET /admin/accounts
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := account.ListOptions{
		SortField: q.Get("sort"),
		Desc:      q.Get("order") != "asc",
		Status:    account.Status(q.Get("status")),
	}
	if opts.SortField == "" {
		opts.SortField = account.SortCreatedAt
	}
	if !account.ValidSortField(opts.SortField) {
		response.BadRequest(w, "Invalid sort field")
		return
	}
	if s := q.Get("size"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= 100 {
			opts.PageSize = v
		}
	}
	if a := q.Get("is_active"); a != "" {
		active := a == "true"
		opts.IsActive = &active
	}

	var (
		accounts []account.Account
		next     *docstore.Cursor
		err      error
	)
	if account.IsDerivedSort(opts.SortField) {
		page := 0
		if p := q.Get("page"); p != "" {
			if v, perr := strconv.Atoi(p); perr == nil && v >= 0 {
				page = v
			}
		}
		accounts, err = h.accounts.ListDerivedPage(r.Context(), opts, page)
	} else {
		var after *docstore.Cursor
		after, err = docstore.DecodeCursor(q.Get("cursor"))
		if err != nil {
			response.BadRequest(w, "Invalid cursor")
			return
		}
		accounts, next, err = h.accounts.ListPage(r.Context(), opts, after)
	}
	if err != nil {
		response.InternalError(w)
		return
	}

	total, err := h.accounts.Count(r.Context())
	if err != nil {
		total = len(accounts)
	}

	response.OK(w, map[string]interface{}{
		"accounts":    toAccountResponses(accounts),
		"total":       total,
		"next_cursor": next.Encode(),
	})
}

// Search handles GET /admin/accounts/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		response.BadRequest(w, "Missing search term")
		return
	}

	accounts, err := h.accounts.Search(r.Context(), term)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"accounts": toAccountResponses(accounts),
		"total":    len(accounts),
	})
}

// GetByID handles GET /admin/accounts/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			response.NotFound(w, "Account not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.OK(w, toAccountResponse(*a))
}

// Ledger handles GET /admin/accounts/{id}/ledger
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	entries, err := h.ledger.ListEntries(r.Context(), id, limit)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// AdjustPoints handles POST /admin/accounts/{id}/points
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AdjustPointsRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	var err error
	if req.Amount > 0 {
		err = h.ledger.Credit(r.Context(), id, req.Amount, req.Reason)
	} else {
		err = h.ledger.Debit(r.Context(), id, -req.Amount, req.Reason)
	}
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), id)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"balance": balance})
}

// AdjustPotion handles POST /admin/accounts/{id}/potions
func (h *Handler) AdjustPotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AdjustPotionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if err := h.ledger.AdjustPotion(r.Context(), id, ledger.Potion(req.Potion), req.Delta, req.Reason); err != nil {
		h.writeLedgerError(w, err)
		return
	}

	potions, err := h.ledger.Potions(r.Context(), id)
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"potions": potions})
}

// CreatePurchase handles POST /admin/purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	amount := req.Amount
	if amount == 0 {
		amount = ledger.DefaultPurchaseCost
	}
	feeSplit := req.FeeSplit
	if feeSplit == 0 {
		feeSplit = ledger.DefaultSaleShare
	}
	reason := req.Reason
	if reason == "" {
		reason = "friend novel purchase"
	}

	if err := h.ledger.Transfer(r.Context(), req.BuyerID, req.SellerID, req.NovelID, amount, feeSplit, reason); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	response.Created(w, map[string]string{"status": "purchased"})
}

// GiftPotion handles POST /admin/gifts
func (h *Handler) GiftPotion(w http.ResponseWriter, r *http.Request) {
	var req GiftPotionRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	if err := h.ledger.GiftPotion(r.Context(), req.FromID, req.ToID, ledger.Potion(req.Potion)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	response.OK(w, map[string]string{"status": "gifted"})
}

// CleanupCandidates handles GET /admin/cleanup/candidates
func (h *Handler) CleanupCandidates(w http.ResponseWriter, r *http.Request) {
	staleDays := 0
	if d := r.URL.Query().Get("stale_days"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v > 0 {
			staleDays = v
		}
	}

	candidates, err := h.cleaner.Candidates(r.Context(), staleDays)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{
		"candidates": candidates,
		"total":      len(candidates),
	})
}

// Cleanup handles POST /admin/cleanup
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	// Destructive runs need the execute permission; dry runs only preview.
	if !req.DryRun && !Allowed(roleFrom(r), PermExecuteCleanup) {
		response.Forbidden(w, "Cleanup execution requires full admin authority")
		return
	}

	ids := req.AccountIDs
	if len(ids) == 0 {
		candidates, err := h.cleaner.Candidates(r.Context(), req.StaleDays)
		if err != nil {
			response.InternalError(w)
			return
		}
		for _, c := range candidates {
			ids = append(ids, c.AccountID)
		}
	}

	result, err := h.cleaner.Cleanup(r.Context(), ids, lifecycle.Options{DryRun: req.DryRun})
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, result)
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		response.NotFound(w, "Account not found")
	case errors.Is(err, ledger.ErrInsufficientPoints):
		response.Conflict(w, "Insufficient point balance")
	case errors.Is(err, ledger.ErrInsufficientPotions):
		response.Conflict(w, "Insufficient potion count")
	case errors.Is(err, ledger.ErrAlreadyPurchased):
		response.Conflict(w, "Novel already purchased")
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrEmptyReason),
		errors.Is(err, ledger.ErrInvalidPotion):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w)
	}
}
