package ledger

import "errors"

var (
	// ErrInvalidAmount is returned when an amount is not positive
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	// ErrEmptyReason is returned when the required reason string is blank
	ErrEmptyReason = errors.New("reason is required")

	// ErrInvalidPotion is returned for a potion key outside the fixed set
	ErrInvalidPotion = errors.New("unknown potion category")

	// ErrInsufficientPoints is returned when a debit exceeds the balance
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInsufficientPotions is returned when a potion decrement would go below zero
	ErrInsufficientPotions = errors.New("insufficient potions")

	// ErrAccountNotFound is returned when the account document doesn't exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrAlreadyPurchased guards transfer retries: the buyer already owns the content
	ErrAlreadyPurchased = errors.New("content already purchased")
)
