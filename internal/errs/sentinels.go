// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across ledger/engine/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization (role check).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates malformed request data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
)

// Input errors. All of them satisfy errors.Is(err, ErrInvalidInput).
var (
	ErrInvalidOdds     = fmt.Errorf("%w: rarity chances must sum to 100", ErrInvalidInput)
	ErrInvalidDeckSize = fmt.Errorf("%w: deck must contain exactly 4 cards", ErrInvalidInput)
	ErrDuplicateCard   = fmt.Errorf("%w: duplicate card in deck", ErrInvalidInput)
	ErrSlotOutOfRange  = fmt.Errorf("%w: deck slot out of range", ErrInvalidInput)
)

// Resource preconditions.
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientPayment     = errors.New("insufficient payment")
	ErrInsufficientEnergy      = errors.New("insufficient energy")
	ErrInsufficientPackBalance = errors.New("insufficient pack balance")

	// ErrInsufficientFunds is the adventure entry fee flavour of ErrInsufficientBalance.
	ErrInsufficientFunds = ErrInsufficientBalance

	// ErrNoPacksOwned is returned when opening a pack type the player holds none of.
	ErrNoPacksOwned = fmt.Errorf("%w: no packs owned", ErrInsufficientPackBalance)
)

// State-machine preconditions.
var (
	ErrAlreadyClaimed = errors.New("already claimed")
	ErrAlreadyMaxed   = errors.New("already maxed")
	ErrNotCompleted   = errors.New("not completed")
	ErrNotReady       = errors.New("not ready")

	// ErrRandomnessPending means the async randomness has not arrived yet; retry later.
	ErrRandomnessPending = errors.New("randomness pending")

	// ErrAlreadyResolved marks a duplicate randomness delivery.
	ErrAlreadyResolved = errors.New("request already resolved")

	ErrNotOwner          = errors.New("card not owned by player")
	ErrDeckNotFound      = errors.New("deck not found")
	ErrInactive          = errors.New("inactive")
	ErrSessionActive     = errors.New("adventure session already active")
	ErrCardLocked        = errors.New("card locked in adventure")
	ErrQuestSlotsFull    = errors.New("weekly quest slots exhausted")
	ErrNoActiveTemplates = errors.New("no active card templates")

	// ErrPaused indicates the game is paused by an administrator.
	ErrPaused = errors.New("game paused")
)
