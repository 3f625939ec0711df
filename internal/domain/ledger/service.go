package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
)

const (
	colUsers     = "users"
	fieldPoint   = "point"
	fieldPotions = "potions"
	fieldUpdated = "updatedAt"
	fieldName    = "displayName"
)

func entriesPath(accountID string) string {
	return colUsers + "/" + accountID + "/pointHistory"
}

func purchasesPath(accountID string) string {
	return colUsers + "/" + accountID + "/viewedNovels"
}

// Service mutates account balances and potion inventories. Every successful
// mutation appends exactly one ledger entry per affected account in the same
// store transaction as the balance write.
type Service struct {
	store docstore.Store
}

// NewService creates a ledger service on top of the document store.
func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// Credit adds amount to the account balance. It cannot fail on balance
// grounds.
func (s *Service) Credit(ctx context.Context, accountID string, amount int, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := getAccount(tx, accountID)
		if err != nil {
			return err
		}
		tx.Update(colUsers, accountID, map[string]interface{}{
			fieldPoint:   docstore.GetInt(doc, fieldPoint) + amount,
			fieldUpdated: time.Now().UTC(),
		})
		appendEntry(tx, accountID, entryData(amount, EntryTypeEarn, reason))
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("account_id", accountID).Int("amount", amount).Str("reason", reason).Msg("points credited")
	return nil
}

// Debit subtracts amount from the account balance, rejecting the whole
// operation when the balance is insufficient.
func (s *Service) Debit(ctx context.Context, accountID string, amount int, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := getAccount(tx, accountID)
		if err != nil {
			return err
		}
		balance := docstore.GetInt(doc, fieldPoint)
		if balance < amount {
			return ErrInsufficientPoints
		}
		tx.Update(colUsers, accountID, map[string]interface{}{
			fieldPoint:   balance - amount,
			fieldUpdated: time.Now().UTC(),
		})
		appendEntry(tx, accountID, entryData(-amount, EntryTypeUse, reason))
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("account_id", accountID).Int("amount", amount).Str("reason", reason).Msg("points debited")
	return nil
}

// AdjustPotion increments or decrements one potion counter. Decrements that
// would take the counter below zero are rejected with ErrInsufficientPotions;
// counters never go negative.
func (s *Service) AdjustPotion(ctx context.Context, accountID string, kind Potion, delta int, reason string) error {
	if !ValidPotion(string(kind)) {
		return ErrInvalidPotion
	}
	if delta == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := getAccount(tx, accountID)
		if err != nil {
			return err
		}
		potions := docstore.GetIntMap(doc, fieldPotions)
		next := potions[string(kind)] + delta
		if next < 0 {
			return ErrInsufficientPotions
		}
		potions[string(kind)] = next

		tx.Update(colUsers, accountID, map[string]interface{}{
			fieldPotions: intMapValue(potions),
			fieldUpdated: time.Now().UTC(),
		})

		data := entryData(0, EntryTypeAdminAdjust, reason)
		data["potion"] = string(kind)
		data["potionDelta"] = delta
		appendEntry(tx, accountID, data)
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("account_id", accountID).Str("potion", string(kind)).Int("delta", delta).Msg("potion adjusted")
	return nil
}

// Transfer performs a peer content purchase: amount is debited from the
// buyer, feeSplit credited to the seller, one entry written per side, and a
// purchase marker stored for the (buyer, contentID) pair. The whole exchange
// is one store transaction; a stale read aborts it and the caller may retry
// safely because of the marker.
func (s *Service) Transfer(ctx context.Context, buyerID, sellerID, contentID string, amount, feeSplit int, reason string) error {
	if amount <= 0 || feeSplit < 0 || feeSplit > amount {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		_, err := tx.Get(purchasesPath(buyerID), contentID)
		if err == nil {
			return ErrAlreadyPurchased
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		buyer, err := getAccount(tx, buyerID)
		if err != nil {
			return err
		}
		seller, err := getAccount(tx, sellerID)
		if err != nil {
			return err
		}

		balance := docstore.GetInt(buyer, fieldPoint)
		if balance < amount {
			return ErrInsufficientPoints
		}

		now := time.Now().UTC()
		tx.Update(colUsers, buyerID, map[string]interface{}{
			fieldPoint:   balance - amount,
			fieldUpdated: now,
		})
		tx.Update(colUsers, sellerID, map[string]interface{}{
			fieldPoint:   docstore.GetInt(seller, fieldPoint) + feeSplit,
			fieldUpdated: now,
		})

		buyerEntry := entryData(-amount, EntryTypePurchase, reason)
		buyerEntry["novelId"] = contentID
		appendEntry(tx, buyerID, buyerEntry)

		sellerEntry := entryData(feeSplit, EntryTypeSale, reason)
		sellerEntry["novelId"] = contentID
		appendEntry(tx, sellerID, sellerEntry)

		tx.Set(purchasesPath(buyerID), contentID, map[string]interface{}{
			"sellerId":    sellerID,
			"pricePaid":   amount,
			"purchasedAt": now,
		})
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("buyer_id", buyerID).
		Str("seller_id", sellerID).
		Str("content_id", contentID).
		Int("amount", amount).
		Int("fee_split", feeSplit).
		Msg("purchase transfer applied")
	return nil
}

// GiftPotion moves one potion of the given kind between two accounts and
// records a zero-amount gift entry on both sides.
func (s *Service) GiftPotion(ctx context.Context, fromID, toID string, kind Potion) error {
	if !ValidPotion(string(kind)) {
		return ErrInvalidPotion
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		from, err := getAccount(tx, fromID)
		if err != nil {
			return err
		}
		to, err := getAccount(tx, toID)
		if err != nil {
			return err
		}

		fromPotions := docstore.GetIntMap(from, fieldPotions)
		if fromPotions[string(kind)] <= 0 {
			return ErrInsufficientPotions
		}
		toPotions := docstore.GetIntMap(to, fieldPotions)
		fromPotions[string(kind)]--
		toPotions[string(kind)]++

		now := time.Now().UTC()
		tx.Update(colUsers, fromID, map[string]interface{}{
			fieldPotions: intMapValue(fromPotions),
			fieldUpdated: now,
		})
		tx.Update(colUsers, toID, map[string]interface{}{
			fieldPotions: intMapValue(toPotions),
			fieldUpdated: now,
		})

		sent := entryData(0, EntryTypeGift, "potion gift sent to "+docstore.GetString(to, fieldName))
		sent["potion"] = string(kind)
		sent["potionDelta"] = -1
		sent["toUserId"] = toID
		appendEntry(tx, fromID, sent)

		received := entryData(0, EntryTypeGift, "potion gift received from "+docstore.GetString(from, fieldName))
		received["potion"] = string(kind)
		received["potionDelta"] = 1
		received["fromUserId"] = fromID
		appendEntry(tx, toID, received)
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("from_id", fromID).Str("to_id", toID).Str("potion", string(kind)).Msg("potion gifted")
	return nil
}

// Balance returns the current point balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int, error) {
	doc, err := s.store.Collection(colUsers).Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return docstore.GetInt(doc, fieldPoint), nil
}

// Potions returns the potion inventory with every category present.
func (s *Service) Potions(ctx context.Context, accountID string) (map[string]int, error) {
	doc, err := s.store.Collection(colUsers).Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	potions := docstore.GetIntMap(doc, fieldPotions)
	for _, p := range AllPotions() {
		if _, ok := potions[string(p)]; !ok {
			potions[string(p)] = 0
		}
	}
	return potions, nil
}

// ListEntries returns the newest ledger entries for an account.
func (s *Service) ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	docs, err := s.store.Collection(entriesPath(accountID)).Query().
		OrderBy("createdAt", true).
		Limit(limit).
		Documents(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, Entry{
			ID:          doc.ID,
			AccountID:   accountID,
			Amount:      docstore.GetInt(doc, "amount"),
			Type:        EntryType(docstore.GetString(doc, "type")),
			Reason:      docstore.GetString(doc, "desc"),
			Potion:      docstore.GetString(doc, "potion"),
			PotionDelta: docstore.GetInt(doc, "potionDelta"),
			ContentID:   docstore.GetString(doc, "novelId"),
			CreatedAt:   docstore.GetTime(doc, "createdAt"),
		})
	}
	return entries, nil
}

func getAccount(tx docstore.Tx, accountID string) (docstore.Document, error) {
	doc, err := tx.Get(colUsers, accountID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return docstore.Document{}, ErrAccountNotFound
		}
		return docstore.Document{}, err
	}
	return doc, nil
}

func appendEntry(tx docstore.Tx, accountID string, data map[string]interface{}) {
	tx.Set(entriesPath(accountID), uuid.New().String(), data)
}

func entryData(amount int, t EntryType, reason string) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(t),
		"amount":    amount,
		"desc":      reason,
		"createdAt": time.Now().UTC(),
	}
}

func intMapValue(m map[string]int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
