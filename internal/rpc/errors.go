package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// Business-rule rejections. The server phrases these as messages; the
// client pattern-matches them into sentinels so call sites can errors.Is
// instead of re-parsing strings.
var (
	ErrCooldown          = errors.New("daily bonus on cooldown")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrAlreadyMigrated   = errors.New("legacy coins already migrated")
	ErrAlreadyPurchased  = errors.New("item already purchased")
	ErrUnauthorized      = errors.New("unauthorized")
)

// APIError is a remote rejection that matched no known business rule.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Message)
}

// classify maps a rejection onto the business-rule sentinels. Anything
// unrecognized stays an *APIError so transport-level handling kicks in.
func classify(op string, status int, message string) error {
	msg := strings.ToLower(message)
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case strings.Contains(msg, "cooldown"):
		return ErrCooldown
	case strings.Contains(msg, "insufficient"):
		return ErrInsufficientFunds
	case strings.Contains(msg, "already migrated"):
		return ErrAlreadyMigrated
	case strings.Contains(msg, "already purchased"), strings.Contains(msg, "already owned"):
		return ErrAlreadyPurchased
	}
	return &APIError{Op: op, Status: status, Message: message}
}

// IsBusinessRejection reports whether err is a recognized rejection rather
// than a transport failure. Rejections resync; they are never retried.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrCooldown) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadyMigrated) ||
		errors.Is(err, ErrAlreadyPurchased)
}
